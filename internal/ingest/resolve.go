package ingest

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/arogya-labs/warehouse-cli/internal/model"
	"github.com/arogya-labs/warehouse-cli/internal/store"
)

// DimensionKeys holds the resolved identifiers a visit fact references.
type DimensionKeys struct {
	PatientID  int64
	HospitalID int64
	DoctorID   int64
	DiseaseID  *int64
	DateID     int
}

// Resolver performs find-or-create resolution of dimension entities against a
// store view. Lookups happen first; creation only on a miss, so repeated rows
// for the same entity resolve to one dimension row within a job.
type Resolver struct {
	store store.Store
}

// NewResolver creates a Resolver bound to the given store view.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve finds or creates every dimension entity the record references.
// Hospital is resolved before Doctor because the doctor match key embeds the
// hospital id.
func (r *Resolver) Resolve(ctx context.Context, rec *Record) (*DimensionKeys, error) {
	dateID, err := r.ensureDate(ctx, rec)
	if err != nil {
		return nil, err
	}

	patientID, err := r.ensurePatient(ctx, rec)
	if err != nil {
		return nil, err
	}

	hospitalID, err := r.ensureHospital(ctx, rec)
	if err != nil {
		return nil, err
	}

	doctorID, err := r.ensureDoctor(ctx, rec, hospitalID)
	if err != nil {
		return nil, err
	}

	diseaseID, err := r.ensureDisease(ctx, rec)
	if err != nil {
		return nil, err
	}

	return &DimensionKeys{
		PatientID:  patientID,
		HospitalID: hospitalID,
		DoctorID:   doctorID,
		DiseaseID:  diseaseID,
		DateID:     dateID,
	}, nil
}

func (r *Resolver) ensureDate(ctx context.Context, rec *Record) (int, error) {
	dim := model.NewDateDimension(rec.VisitDate)
	ok, err := r.store.HasDate(ctx, dim.ID)
	if err != nil {
		return 0, eris.Wrap(err, "resolve: lookup date")
	}
	if ok {
		return dim.ID, nil
	}
	if err := r.store.CreateDate(ctx, dim); err != nil {
		return 0, eris.Wrap(err, "resolve: create date")
	}
	return dim.ID, nil
}

func (r *Resolver) ensurePatient(ctx context.Context, rec *Record) (int64, error) {
	if rec.Phone != "" || rec.Email != "" {
		id, ok, err := r.store.FindPatientID(ctx, rec.Phone, rec.Email)
		if err != nil {
			return 0, eris.Wrap(err, "resolve: lookup patient")
		}
		if ok {
			return id, nil
		}
	}

	id, err := r.store.CreatePatient(ctx, model.Patient{
		Name:    rec.PatientName,
		Age:     rec.Age,
		Gender:  rec.Gender,
		Phone:   rec.Phone,
		Email:   rec.Email,
		Address: rec.Address,
		City:    rec.City,
		State:   rec.State,
		Pincode: rec.Pincode,
	})
	if err != nil {
		return 0, eris.Wrap(err, "resolve: create patient")
	}
	return id, nil
}

func (r *Resolver) ensureHospital(ctx context.Context, rec *Record) (int64, error) {
	id, ok, err := r.store.FindHospitalID(ctx, rec.HospitalName, rec.HospitalState)
	if err != nil {
		return 0, eris.Wrap(err, "resolve: lookup hospital")
	}
	if ok {
		return id, nil
	}

	id, err = r.store.CreateHospital(ctx, model.Hospital{
		Name:            rec.HospitalName,
		Type:            rec.HospitalType,
		Address:         rec.HospitalAddress,
		City:            rec.HospitalCity,
		State:           rec.HospitalState,
		Pincode:         rec.HospitalPincode,
		Phone:           rec.HospitalPhone,
		Email:           rec.HospitalEmail,
		BedsCount:       rec.BedsCount,
		EstablishedYear: rec.EstablishedYear,
	})
	if err != nil {
		return 0, eris.Wrap(err, "resolve: create hospital")
	}
	return id, nil
}

func (r *Resolver) ensureDoctor(ctx context.Context, rec *Record, hospitalID int64) (int64, error) {
	id, ok, err := r.store.FindDoctorID(ctx, rec.DoctorName, hospitalID)
	if err != nil {
		return 0, eris.Wrap(err, "resolve: lookup doctor")
	}
	if ok {
		return id, nil
	}

	id, err = r.store.CreateDoctor(ctx, model.Doctor{
		Name:            rec.DoctorName,
		Specialization:  rec.Specialization,
		Qualification:   rec.Qualification,
		ExperienceYears: rec.ExperienceYears,
		HospitalID:      hospitalID,
		ConsultationFee: rec.ConsultationFee,
	})
	if err != nil {
		return 0, eris.Wrap(err, "resolve: create doctor")
	}
	return id, nil
}

// ensureDisease returns a nil id for a blank disease name; the visit fact
// carries a nullable disease reference in that case.
func (r *Resolver) ensureDisease(ctx context.Context, rec *Record) (*int64, error) {
	if rec.DiseaseName == "" {
		return nil, nil
	}

	id, ok, err := r.store.FindDiseaseID(ctx, rec.DiseaseName)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: lookup disease")
	}
	if ok {
		return &id, nil
	}

	id, err = r.store.CreateDisease(ctx, model.Disease{
		Name:        rec.DiseaseName,
		Category:    "General",
		Severity:    "Medium",
		Description: "Auto-created during ingestion for " + rec.DiseaseName,
	})
	if err != nil {
		return nil, eris.Wrap(err, "resolve: create disease")
	}
	return &id, nil
}
