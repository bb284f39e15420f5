package ngsi

// Metadata annotates an attribute, e.g. with the coordinate reference system
// of a location.
type Metadata struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type Attribute struct {
	Name      string     `json:"name"`
	Type      string     `json:"type,omitempty"`
	Value     any        `json:"value"`
	Metadatas []Metadata `json:"metadatas,omitempty"`
}

// Entity is a context element in the shape expected by the NGSI v1 update
// and query operations. The ID is always a scalar string.
type Entity struct {
	Type       string      `json:"type"`
	IsPattern  string      `json:"isPattern"`
	ID         string      `json:"id"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

func (e Entity) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

const (
	UpdateActionAppend string = "APPEND"
)

type UpdateRequest struct {
	ContextElements []Entity `json:"contextElements"`
	UpdateAction    string   `json:"updateAction"`
}

type EntityPattern struct {
	Type      string `json:"type"`
	IsPattern string `json:"isPattern"`
	ID        string `json:"id"`
}

type QueryRequest struct {
	Entities   []EntityPattern `json:"entities"`
	Attributes []string        `json:"attributes,omitempty"`
}

type StatusCode struct {
	Code         string `json:"code"`
	ReasonPhrase string `json:"reasonPhrase"`
	Details      string `json:"details,omitempty"`
}

// StatusOK is the only status code that marks a context response as accepted
var StatusOK = StatusCode{Code: "200", ReasonPhrase: "OK"}

func (sc StatusCode) IsOK() bool {
	return sc.Code == StatusOK.Code && sc.ReasonPhrase == StatusOK.ReasonPhrase
}

type ContextResponse struct {
	ContextElement Entity     `json:"contextElement"`
	StatusCode     StatusCode `json:"statusCode"`
}

// Response is returned by both updateContext and queryContext
type Response struct {
	ContextResponses []ContextResponse `json:"contextResponses"`
	ErrorCode        *StatusCode       `json:"errorCode,omitempty"`
}

// Accepted reports whether every context response in the batch carries the
// 200/OK status code.
func (r Response) Accepted() bool {
	if r.ErrorCode != nil || len(r.ContextResponses) == 0 {
		return false
	}

	for _, cr := range r.ContextResponses {
		if !cr.StatusCode.IsOK() {
			return false
		}
	}

	return true
}

// ExtractIDs lists the ids of the entities found by a query
func ExtractIDs(r *Response) []string {
	ids := []string{}

	if r == nil {
		return ids
	}

	for _, cr := range r.ContextResponses {
		ids = append(ids, cr.ContextElement.ID)
	}

	return ids
}
