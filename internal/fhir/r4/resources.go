// Package r4 provides the FHIR R4 data structures exchanged with the
// destination server.
package r4

// Patient represents a FHIR R4 Patient resource.
type Patient struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Name         []HumanName  `json:"name,omitempty"`
	Gender       string       `json:"gender,omitempty"` // male | female | other | unknown
	BirthDate    string       `json:"birthDate,omitempty"`
}

// RelativeURL returns the resource-type path used in REST and bundle
// request URLs.
func (p *Patient) RelativeURL() string { return "Patient" }

// GetFamilyName returns the patient's family name, or "" when none is set.
func (p *Patient) GetFamilyName() string {
	if len(p.Name) == 0 {
		return ""
	}
	return p.Name[0].Family
}

// GetIdentifier returns the identifier value under the given system,
// or "" when absent.
func (p *Patient) GetIdentifier(system string) string {
	for _, id := range p.Identifier {
		if id.System == system {
			return id.Value
		}
	}
	return ""
}

// Observation represents a FHIR R4 Observation resource carrying a single
// point-in-time measurement.
type Observation struct {
	ResourceType      string          `json:"resourceType"`
	ID                string          `json:"id,omitempty"`
	Identifier        []Identifier    `json:"identifier,omitempty"`
	Status            string          `json:"status"`
	Code              CodeableConcept `json:"code"`
	Subject           *Reference      `json:"subject,omitempty"`
	EffectiveDateTime string          `json:"effectiveDateTime,omitempty"`
	ValueQuantity     *Quantity       `json:"valueQuantity,omitempty"`
}

// RelativeURL returns the resource-type path used in REST and bundle
// request URLs.
func (o *Observation) RelativeURL() string { return "Observation" }

// GetCode returns the first coding code of the observation, or "".
func (o *Observation) GetCode() string {
	if len(o.Code.Coding) == 0 {
		return ""
	}
	return o.Code.Coding[0].Code
}

// SubjectID returns the id part of a "Patient/{id}" subject reference,
// or "" when the subject is absent or not patient-shaped.
func (o *Observation) SubjectID() string {
	if o.Subject == nil {
		return ""
	}
	const prefix = "Patient/"
	ref := o.Subject.Reference
	if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
		return ref[len(prefix):]
	}
	return ""
}
