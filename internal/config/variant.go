package config

import "strings"

// Variant carries the user-facing labels of one flavour of the stamping tool.
// The pipeline is identical for every variant.
type Variant struct {
	Name      string
	Title     string
	StampNoun string
	Messages  Messages
}

// Messages are the status lines shown as a session advances.
type Messages struct {
	Idle           string
	TemplateLoaded string
	OverlayLoaded  string
	RegionSelected string
	RegionTooSmall string
	Merging        string
	Composed       string
	MissingInputs  string
}

var variants = map[string]Variant{
	"insert": {
		Name:      "insert",
		Title:     "PDF Merger",
		StampNoun: "insert",
		Messages: Messages{
			Idle:           "1. Choose the template PDF. 2. Choose the insert PDF. 3. Crop the area on the insert. 4. Merge.",
			TemplateLoaded: "Template selected: %s",
			OverlayLoaded:  "Insert selected. Select the area to insert!",
			RegionSelected: "Area selected. You can now place the insert on the template!",
			RegionTooSmall: "The area is too small for an insert!",
			Merging:        "Extracting pages and assembling the PDF...",
			Composed:       "Done! New file: %s",
			MissingInputs:  "Choose a template and an insert, crop the area and pick a position!",
		},
	},
	"qr": {
		Name:      "qr",
		Title:     "PDF QR Merger",
		StampNoun: "QR code",
		Messages: Messages{
			Idle:           "1. Choose the template PDF. 2. Choose the QR code PDF. 3. Crop the QR code. 4. Merge.",
			TemplateLoaded: "Template selected: %s",
			OverlayLoaded:  "QR code PDF selected. Select the QR code area!",
			RegionSelected: "QR code selected. You can now place it on the template!",
			RegionTooSmall: "The area is too small for a QR code!",
			Merging:        "Extracting QR codes and assembling the PDF...",
			Composed:       "Done! New file: %s",
			MissingInputs:  "Choose a template and a QR code PDF, crop the QR code and pick a position!",
		},
	},
}

// VariantByName returns the named variant, falling back to "insert".
func VariantByName(name string) Variant {
	if v, ok := variants[strings.ToLower(strings.TrimSpace(name))]; ok {
		return v
	}
	return variants["insert"]
}
