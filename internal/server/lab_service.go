package server

import (
	"context"

	"deptcms/internal/ingest"
	"deptcms/internal/models"
	"deptcms/internal/refs"
	"deptcms/internal/tenant"
)

type labService struct {
	serviceBase
}

func (s *labService) Schema() ingest.Schema {
	return ingest.Schema{Multi: []string{"labImages"}}
}

func (s *labService) List(ctx context.Context, b *tenant.Binding, _ assetLinker) (any, error) {
	return b.Records.ListLabs(ctx)
}

func (s *labService) Create(ctx context.Context, b *tenant.Binding, form *ingest.Session) (any, error) {
	if err := requireFields(form, "name", "address", "specialization", "description", "capacity"); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	lab := &models.Lab{LabImageIDs: refs.Append(nil, form.Files["labImages"])}
	if err := applyLabFields(form, lab); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	if err := b.Records.CreateLab(ctx, lab); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	return lab, nil
}

func (s *labService) Update(ctx context.Context, b *tenant.Binding, id string, form *ingest.Session) (any, error) {
	lab, err := b.Records.GetLab(ctx, id)
	if err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	before := lab.BlobRefs()

	if err := applyLabFields(form, lab); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	if ordering, ok := form.Field("orderedImageIds"); ok && ordering != "" {
		reordered, err := refs.Reorder(lab.LabImageIDs, splitCSV(ordering))
		if err != nil {
			return nil, s.discard(ctx, b, form, err)
		}
		lab.LabImageIDs = reordered
	}
	lab.LabImageIDs = refs.Append(lab.LabImageIDs, form.Files["labImages"])

	if err := b.Records.UpdateLab(ctx, lab); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	s.reconcile(ctx, b, before, lab.BlobRefs())
	return lab, nil
}

func (s *labService) Delete(ctx context.Context, b *tenant.Binding, id string) error {
	lab, err := b.Records.GetLab(ctx, id)
	if err != nil {
		return err
	}
	if err := b.Records.DeleteLab(ctx, id); err != nil {
		return err
	}
	s.cascade(ctx, b, id, lab.BlobRefs())
	return nil
}

func (s *labService) RemoveReference(ctx context.Context, b *tenant.Binding, blobID string) (bool, error) {
	return s.refs.RemoveFromList(ctx, b.Bucket, blobID, b.Records.PullLabImage)
}

func applyLabFields(form *ingest.Session, lab *models.Lab) error {
	setString(form, "name", &lab.Name)
	setString(form, "address", &lab.Address)
	setString(form, "specialization", &lab.Specialization)
	setString(form, "webpageURL", &lab.WebpageURL)
	setString(form, "description", &lab.Description)
	setList(form, "coordinators", ",", &lab.Coordinators)
	setList(form, "technical_staff", ",", &lab.TechnicalStaff)
	setList(form, "objectives", ";", &lab.Objectives)
	if err := setInt(form, "capacity", &lab.Capacity); err != nil {
		return err
	}
	if _, err := setJSON(form, "hardware_details", &lab.HardwareDetails); err != nil {
		return err
	}
	_, err := setJSON(form, "software_details", &lab.SoftwareDetails)
	return err
}
