package models

// Exchange areas around Buenos Aires. A listing is visible to a viewer
// only when owner and viewer share at least one area.
const (
	AreaCABA     = "CABA"
	AreaGBANorte = "GBA_NORTE"
	AreaGBAOeste = "GBA_OESTE"
	AreaGBASur   = "GBA_SUR"
)

var AllAreas = []string{AreaCABA, AreaGBANorte, AreaGBAOeste, AreaGBASur}

func ValidArea(a string) bool {
	for _, known := range AllAreas {
		if a == known {
			return true
		}
	}
	return false
}

// Profile carries the contact details handed to the book owner when an
// exchange request is admitted. ContactEmail is where counterparts
// write; it may differ from the login email.
type Profile struct {
	UserID           string   `json:"user_id"`
	FirstName        string   `json:"first_name,omitempty"`
	ContactEmail     string   `json:"contact_email"`
	AlternateContact string   `json:"alternate_contact,omitempty"`
	About            string   `json:"about,omitempty"`
	Areas            []string `json:"areas"`
}
