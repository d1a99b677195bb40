package domain

// Slot keys for the eight fixed document categories every organization submits.
const (
	SlotCoverLetter              = "cover_letter"
	SlotMemorandum               = "memorandum"
	SlotRegistrationCertificate  = "registration_certificate"
	SlotIncorporationCertificate = "incorporation_certificate"
	SlotPremisesCertificate      = "premises_certificate"
	SlotLogo                     = "logo"
	SlotStatutoryForm            = "statutory_form"
	SlotIDDocument               = "id_document"
)

// Slot is one fixed document category with its human-readable name (used in
// notification titles and email bodies).
type Slot struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
}

// Slots is the fixed registry, in submission order.
var Slots = []Slot{
	{SlotCoverLetter, "Cover Letter"},
	{SlotMemorandum, "Memorandum"},
	{SlotRegistrationCertificate, "Registration Certificate"},
	{SlotIncorporationCertificate, "Incorporation Certificate"},
	{SlotPremisesCertificate, "Premises Certificate"},
	{SlotLogo, "Logo"},
	{SlotStatutoryForm, "Statutory Form"},
	{SlotIDDocument, "ID Document"},
}

// SlotByKey returns the slot for key, or false if the key is not one of the
// eight registered slots.
func SlotByKey(key string) (Slot, bool) {
	for _, s := range Slots {
		if s.Key == key {
			return s, true
		}
	}
	return Slot{}, false
}

// SlotDisplayName returns the display name for key, or the key itself if unknown.
func SlotDisplayName(key string) string {
	if s, ok := SlotByKey(key); ok {
		return s.DisplayName
	}
	return key
}
