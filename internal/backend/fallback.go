package backend

import (
	"github.com/automedic/clinic/internal/domain/doctor"
	"github.com/automedic/clinic/internal/domain/patient"
	"github.com/automedic/clinic/internal/domain/prescription"
)

// Local datasets served when a read cannot reach the API.
// Every call returns fresh values so callers may modify them.

func fallbackDashboard() DashboardStats {
	return DashboardStats{PatientsToday: 12, PrescriptionsToday: 8, FeesCollected: 1250.00}
}

func fallbackPatients() []patient.Patient {
	return []patient.Patient{
		{ID: "1", Name: "John Doe", Age: 45, Gender: "Male", LastVisit: "2023-10-15"},
		{ID: "2", Name: "Jane Smith", Age: 34, Gender: "Female", LastVisit: "2023-10-12"},
		{ID: "3", Name: "Peter Jones", Age: 52, Gender: "Male", LastVisit: "2023-09-28"},
	}
}

// fallbackPatientDetail keeps the requested id so links stay consistent.
func fallbackPatientDetail(id string) patient.Detail {
	base := patient.Patient{ID: id, Name: "Unknown Patient"}
	for _, p := range fallbackPatients() {
		if p.ID == id {
			base = p
			break
		}
	}
	return patient.Detail{
		Patient:        base,
		Contact:        "555-1234",
		MedicalHistory: "Hypertension, Allergic to Penicillin.",
		RecentEncounters: []patient.Encounter{
			{Date: "2023-10-15", Diagnosis: "Common Cold"},
		},
	}
}

func fallbackDoctor() doctor.Profile {
	return doctor.Profile{
		Name:           "Dr. Emily Carter",
		Specialization: "Cardiology",
		ClinicInfo:     "Heartbeat Clinic, 123 Health St.",
		DefaultFee:     150,
	}
}

func fallbackPrescription(id string) PrescriptionDetail {
	return PrescriptionDetail{
		ID:          id,
		PatientName: "Jane Smith",
		Diagnosis:   "Migraine",
		Medications: []prescription.Medication{{Name: "Sumatriptan", Dosage: "50mg"}},
		PDFURL:      "/mock-prescription.pdf",
	}
}
