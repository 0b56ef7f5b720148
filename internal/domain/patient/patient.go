// Package patient holds the patient roster types.
package patient

import "strings"

// Patient is one roster entry.
type Patient struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	LastVisit string `json:"lastVisit"`
}

// Encounter is a past visit.
type Encounter struct {
	Date      string `json:"date"`
	Diagnosis string `json:"diagnosis"`
}

// Detail is a patient with contact and history.
type Detail struct {
	Patient
	Contact          string      `json:"contact"`
	MedicalHistory   string      `json:"medicalHistory"`
	RecentEncounters []Encounter `json:"recentEncounters"`
}

// Search returns the patients whose name contains term, ignoring case.
// An empty term returns the full roster.
func Search(roster []Patient, term string) []Patient {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return roster
	}

	out := make([]Patient, 0, len(roster))
	for _, p := range roster {
		if strings.Contains(strings.ToLower(p.Name), term) {
			out = append(out, p)
		}
	}
	return out
}
