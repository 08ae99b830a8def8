package httpapi

import "github.com/zeferini/eventsourcing/person"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string              `json:"error" example:"validation_error"`
	Message string              `json:"message,omitempty" example:"Person with ID 0f8fad5b-d9cb-469f-a165-70867728950e not found"`
	Fields  []person.FieldError `json:"fields,omitempty"`
}

// CreatePersonRequest is the body of POST /persons.
type CreatePersonRequest struct {
	Name  string `json:"name" example:"Ada Lovelace"`
	Email string `json:"email" example:"ada@example.com"`
}

// UpdatePersonRequest is the body of PATCH /persons/{id}. Omitted or null
// fields keep their current value.
type UpdatePersonRequest struct {
	Name  *string `json:"name,omitempty" example:"Ada King"`
	Email *string `json:"email,omitempty" example:"ada@turing.org"`
}

// PersonResponse mirrors person.Person for the API documentation.
type PersonResponse struct {
	ID        string `json:"id" example:"0f8fad5b-d9cb-469f-a165-70867728950e"`
	Name      string `json:"name" example:"Ada Lovelace"`
	Email     string `json:"email" example:"ada@example.com"`
	CreatedAt string `json:"createdAt" example:"2024-05-01T09:00:00Z"`
	UpdatedAt string `json:"updatedAt" example:"2024-05-01T09:00:00Z"`
}

func toPerson(p person.Person) PersonResponse {
	return PersonResponse{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		CreatedAt: p.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt: p.UpdatedAt.UTC().Format(timeLayout),
	}
}

func toPersons(ps []person.Person) []PersonResponse {
	out := make([]PersonResponse, len(ps))
	for i, p := range ps {
		out[i] = toPerson(p)
	}
	return out
}
