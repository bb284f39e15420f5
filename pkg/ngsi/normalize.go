package ngsi

import (
	"fmt"
	"strconv"

	"github.com/diwise/transit-publisher/pkg/jsonvalue"
	"github.com/tidwall/geojson"
)

const (
	ResourceLocatorAttribute string = "resource_uri"
	PointAttribute           string = "point"
	CoordinatesAttribute     string = "coordinates"

	CoordinatesType string = "coords"
	LocationCRS     string = "WGS84"
)

// Normalize flattens a record from the source API into an entity. Nested
// objects are replaced by the id they refer to (or null when they refer to
// nothing), the point becomes a
// "lat,lon" coordinates attribute and the resource locator is dropped.
func Normalize(raw jsonvalue.Object, entityType string) (Entity, error) {
	id, ok := identify(raw)
	if !ok {
		return Entity{}, fmt.Errorf("%s record has neither id nor %s (%w)", entityType, ResourceLocatorAttribute, ErrMissingID)
	}

	e := Entity{
		Type:       entityType,
		IsPattern:  "false",
		ID:         id,
		Attributes: make([]Attribute, 0, raw.Len()),
	}

	for _, m := range raw.Members() {
		switch m.Key {
		case "id", ResourceLocatorAttribute:
			continue
		case PointAttribute:
			attr, skip, err := coordinates(m.Value)
			if err != nil {
				return Entity{}, fmt.Errorf("%s %s: %w", entityType, id, err)
			}
			if !skip {
				e.Attributes = append(e.Attributes, attr)
			}
			continue
		}

		switch v := m.Value.(type) {
		case jsonvalue.Object:
			// attributes stay flat, an object that refers to nothing is published as null
			if ref, ok := identify(v); ok {
				e.Attributes = append(e.Attributes, Attribute{Name: m.Key, Value: ref})
			} else {
				e.Attributes = append(e.Attributes, Attribute{Name: m.Key, Value: jsonvalue.Null()})
			}
		case jsonvalue.Array:
			e.Attributes = append(e.Attributes, Attribute{Name: m.Key, Value: v})
		case jsonvalue.Scalar:
			e.Attributes = append(e.Attributes, Attribute{Name: m.Key, Value: v})
		}
	}

	return e, nil
}

// NormalizeAll normalizes records in order and stops at the first failure
func NormalizeAll(records []jsonvalue.Object, entityType string) ([]Entity, error) {
	entities := make([]Entity, 0, len(records))

	for _, r := range records {
		e, err := Normalize(r, entityType)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	return entities, nil
}

// identify returns the id of an object, falling back to the trailing numeric
// segment of its resource locator.
func identify(obj jsonvalue.Object) (string, bool) {
	if v, ok := obj.Get("id"); ok {
		if s, ok := v.(jsonvalue.Scalar); ok && !s.IsNull() && s.String() != "" {
			return s.String(), true
		}
	}

	if locator := obj.GetString(ResourceLocatorAttribute); locator != "" {
		return jsonvalue.TrailingNumericSegment(locator)
	}

	return "", false
}

func coordinates(v jsonvalue.Value) (Attribute, bool, error) {
	var point jsonvalue.Object

	switch p := v.(type) {
	case jsonvalue.Scalar:
		if p.IsNull() {
			return Attribute{}, true, nil
		}
		return Attribute{}, false, fmt.Errorf("point is a scalar (%w)", ErrBadPoint)
	case jsonvalue.Array:
		return Attribute{}, false, fmt.Errorf("point is an array (%w)", ErrBadPoint)
	case jsonvalue.Object:
		point = p
	}

	lat, lon, err := Position(point)
	if err != nil {
		return Attribute{}, false, err
	}

	return Attribute{
		Name:  CoordinatesAttribute,
		Type:  CoordinatesType,
		Value: strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64),
		Metadatas: []Metadata{
			{Name: "location", Type: "string", Value: LocationCRS},
		},
	}, false, nil
}

// Position returns latitude and longitude of a GeoJSON point. The source
// omits the geometry type at times, in which case Point is assumed.
func Position(point jsonvalue.Object) (latitude, longitude float64, err error) {
	if _, ok := point.Get("type"); !ok {
		members := append([]jsonvalue.Member{{Key: "type", Value: jsonvalue.String("Point")}}, point.Members()...)
		point = jsonvalue.NewObject(members...)
	}

	if point.GetString("type") != "Point" {
		return 0, 0, fmt.Errorf("geometry %q is not a point (%w)", point.GetString("type"), ErrBadPoint)
	}

	b, err := point.MarshalJSON()
	if err != nil {
		return 0, 0, fmt.Errorf("%s (%w)", err.Error(), ErrBadPoint)
	}

	obj, err := geojson.Parse(string(b), geojson.DefaultParseOptions)
	if err != nil {
		return 0, 0, fmt.Errorf("%s (%w)", err.Error(), ErrBadPoint)
	}

	center := obj.Center()
	return center.Y, center.X, nil
}
