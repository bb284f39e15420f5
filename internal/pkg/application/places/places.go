package places

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/diwise/transit-publisher/pkg/ckan"
	"github.com/diwise/transit-publisher/pkg/jsonvalue"
	"github.com/diwise/transit-publisher/pkg/ngsi"
	"github.com/diwise/transit-publisher/pkg/ost"
)

const (
	Category string = "Transportation"
	Country  string = "Portugal"

	PrimaryKey string = "field_poi_id"
)

var ErrBadStop = fmt.Errorf("stop cannot be turned into a place")

// parishes that are published under a single neighbourhood
var neighbourhoods = map[string]string{
	"Santa Maria de Belém": "Belém",
	"São Francisco Xavier": "Belém",
}

// Fields is the datastore schema of the places resource
var Fields = []ckan.Field{
	{ID: "field_poi_id", Type: ckan.FieldTypeInt},
	{ID: "field_neighbourhood", Type: ckan.FieldTypeText},
	{ID: "field_title", Type: ckan.FieldTypeText},
	{ID: "field_category_places", Type: ckan.FieldTypeText},
	{ID: "field_body", Type: ckan.FieldTypeText},
	{ID: "field_photographs", Type: ckan.FieldTypeText},
	{ID: "field_website", Type: ckan.FieldTypeText},
	{ID: "field_email", Type: ckan.FieldTypeText},
	{ID: "field_phone", Type: ckan.FieldTypeText},
	{ID: "field_location_latitude", Type: ckan.FieldTypeFloat},
	{ID: "field_location_longitude", Type: ckan.FieldTypeFloat},
	{ID: "field_location_address_first_line", Type: ckan.FieldTypeText},
	{ID: "field_location_address_second_line", Type: ckan.FieldTypeText},
	{ID: "field_location_city", Type: ckan.FieldTypeText},
	{ID: "field_location_country", Type: ckan.FieldTypeText},
}

// Agency describes the operator of the stops a place is built from
type Agency struct {
	Name      string
	Transport string
	Website   string
}

type Place struct {
	ID            any     `json:"field_poi_id"`
	Neighbourhood string  `json:"field_neighbourhood"`
	Title         string  `json:"field_title"`
	Category      string  `json:"field_category_places"`
	Body          string  `json:"field_body"`
	Photographs   string  `json:"field_photographs"`
	Website       string  `json:"field_website"`
	Email         string  `json:"field_email"`
	Phone         string  `json:"field_phone"`
	Latitude      float64 `json:"field_location_latitude"`
	Longitude     float64 `json:"field_location_longitude"`
	AddressLine1  string  `json:"field_location_address_first_line"`
	AddressLine2  string  `json:"field_location_address_second_line"`
	City          string  `json:"field_location_city"`
	Country       string  `json:"field_location_country"`
	ResourceID    string  `json:"resource_id"`
}

// Location returns latitude and longitude of a stop record
func Location(stop jsonvalue.Object) (float64, float64, error) {
	point, ok := stop.GetObject(ngsi.PointAttribute)
	if !ok {
		return 0, 0, fmt.Errorf("stop %s has no point (%w)", stop.GetString("id"), ErrBadStop)
	}

	lat, lon, err := ngsi.Position(point)
	if err != nil {
		return 0, 0, fmt.Errorf("stop %s: %s (%w)", stop.GetString("id"), err.Error(), ErrBadStop)
	}

	return lat, lon, nil
}

// New builds the place of a stop from the administrative areas and the
// address found at its location. An empty address is allowed.
func New(stop jsonvalue.Object, agency Agency, where ost.WhereAt, address, resourceID string) (Place, error) {
	id, ok := stop.Get("id")
	if !ok {
		return Place{}, fmt.Errorf("stop has no id (%w)", ErrBadStop)
	}

	lat, lon, err := Location(stop)
	if err != nil {
		return Place{}, err
	}

	title := CapWords(stop.GetString("stop_name"))

	return Place{
		ID:            id,
		Neighbourhood: Neighbourhood(where.Parish),
		Title:         title,
		Category:      Category,
		Body:          fmt.Sprintf("%s %s station called %s", agency.Name, agency.Transport, title),
		Website:       agency.Website,
		Latitude:      lat,
		Longitude:     lon,
		AddressLine1:  SanitizeAddress(address),
		City:          where.Municipality,
		Country:       Country,
		ResourceID:    resourceID,
	}, nil
}

func (p Place) Record() map[string]any {
	return map[string]any{
		"field_poi_id":                       p.ID,
		"field_neighbourhood":                p.Neighbourhood,
		"field_title":                        p.Title,
		"field_category_places":              p.Category,
		"field_body":                         p.Body,
		"field_photographs":                  p.Photographs,
		"field_website":                      p.Website,
		"field_email":                        p.Email,
		"field_phone":                        p.Phone,
		"field_location_latitude":            p.Latitude,
		"field_location_longitude":           p.Longitude,
		"field_location_address_first_line":  p.AddressLine1,
		"field_location_address_second_line": p.AddressLine2,
		"field_location_city":                p.City,
		"field_location_country":             p.Country,
		"resource_id":                        p.ResourceID,
	}
}

func Neighbourhood(parish string) string {
	if n, ok := neighbourhoods[parish]; ok {
		return n
	}
	return parish
}

// SanitizeAddress replaces the characters that break the catalog's csv exports
func SanitizeAddress(address string) string {
	return strings.NewReplacer("&", "E", ";", " ").Replace(address)
}

// CapWords lower cases each word of s except for its first letter, which is
// upper cased. Words are joined by single spaces.
func CapWords(s string) string {
	words := strings.Fields(s)

	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}

	return strings.Join(words, " ")
}
