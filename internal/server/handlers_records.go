package server

import (
	"errors"
	"fmt"
	"net/http"

	"deptcms/internal/api"
	"deptcms/internal/ingest"
	"deptcms/internal/models"
	"deptcms/internal/tenant"
)

const sessionAssetPrefix = "/v1/assets/"

// bindRequest resolves the caller's department and the record type's binding.
func (s *Server) bindRequest(w http.ResponseWriter, r *http.Request, recordType models.RecordType) (*tenant.Binding, bool) {
	department, ok := departmentFromContext(r.Context())
	if !ok {
		s.writeErrorReq(w, r, http.StatusForbidden, forbiddenCode(tenant.ErrTenantRequired, ErrCodeInvalidTenant))
		return nil, false
	}
	return s.bind(w, r, department, recordType)
}

func (s *Server) bind(w http.ResponseWriter, r *http.Request, department string, recordType models.RecordType) (*tenant.Binding, bool) {
	if s.registry == nil {
		s.writeErrorReq(w, r, http.StatusInternalServerError, internalError(errors.New("tenant registry not configured")))
		return nil, false
	}
	binding, err := s.registry.Bind(r.Context(), department, recordType)
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	return binding, true
}

// parseUpload streams the multipart body into the binding's bucket. Blobs
// that landed in a single-file field more than once are removed here.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request, b *tenant.Binding, schema ingest.Schema) (*ingest.Session, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	form, err := s.pipeline.Parse(r.Context(), r.Body, r.Header.Get("Content-Type"), b.Bucket, schema)
	if err != nil {
		var uploadErr *ingest.UploadError
		if errors.As(err, &uploadErr) && len(uploadErr.Created) > 0 {
			s.log().Warn("upload failed with committed siblings",
				"department", b.Namespace.Key, "bucket", b.Bucket.Name(), "orphans", uploadErr.Created)
		}
		s.writeServiceError(w, r, err)
		return nil, false
	}
	if len(form.Extras) > 0 {
		s.refs.Cascade(r.Context(), b.Bucket, form.Extras)
	}
	return form, true
}

func (s *Server) handleListRecords(recordType models.RecordType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := s.bindRequest(w, r, recordType)
		if !ok {
			return
		}
		data, err := s.services.byType(recordType).List(r.Context(), b, assetPath(sessionAssetPrefix))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeOK(w, http.StatusOK, "", data)
	}
}

func (s *Server) handleCountRecords(recordType models.RecordType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := s.bindRequest(w, r, recordType)
		if !ok {
			return
		}
		count, err := b.Records.Count(r.Context(), recordType)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		s.writeOK(w, http.StatusOK, "", api.CountResponse{Count: count})
	}
}

func (s *Server) handleCreateRecord(recordType models.RecordType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := s.bindRequest(w, r, recordType)
		if !ok {
			return
		}
		svc := s.services.byType(recordType)
		s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
			form, ok := s.parseUpload(w, r, b, svc.Schema())
			if !ok {
				return
			}
			data, err := svc.Create(r.Context(), b, form)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			s.writeOK(w, http.StatusCreated, fmt.Sprintf("%s created", recordType), data)
		})
	}
}

func (s *Server) handleUpdateRecord(recordType models.RecordType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.queryIDOrBadRequest(w, r)
		if !ok {
			return
		}
		b, ok := s.bindRequest(w, r, recordType)
		if !ok {
			return
		}
		updater, ok := s.services.byType(recordType).(formUpdater)
		if !ok {
			s.writeErrorReq(w, r, http.StatusMethodNotAllowed, makeAPIError(http.StatusMethodNotAllowed, "not_implemented", ErrCodeNotImplemented, fmt.Errorf("%s cannot be updated", recordType)))
			return
		}
		s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
			form, ok := s.parseUpload(w, r, b, s.services.byType(recordType).Schema())
			if !ok {
				return
			}
			data, err := updater.Update(r.Context(), b, id, form)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			s.writeOK(w, http.StatusOK, fmt.Sprintf("%s updated", recordType), data)
		})
	}
}

// handleReorderBanners takes a JSON list of {id, order}.
func (s *Server) handleReorderBanners(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bindRequest(w, r, models.RecordBanners)
	if !ok {
		return
	}
	var orders []models.BannerOrder
	if !s.decodeJSONReq(w, r, &orders) {
		return
	}
	if err := s.services.banners.Reorder(r.Context(), b, orders); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeOK(w, http.StatusOK, "banners reordered", nil)
}

func (s *Server) handleDeleteRecord(recordType models.RecordType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.queryIDOrBadRequest(w, r)
		if !ok {
			return
		}
		b, ok := s.bindRequest(w, r, recordType)
		if !ok {
			return
		}
		if err := s.services.byType(recordType).Delete(r.Context(), b, id); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeOK(w, http.StatusOK, fmt.Sprintf("%s deleted", recordType), nil)
	}
}

// handleRemoveReference deletes one blob and drops it from every record of the type.
func (s *Server) handleRemoveReference(recordType models.RecordType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blobID, ok := s.queryIDOrBadRequest(w, r)
		if !ok {
			return
		}
		b, ok := s.bindRequest(w, r, recordType)
		if !ok {
			return
		}
		remover, ok := s.services.byType(recordType).(referenceRemover)
		if !ok {
			s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("%s has no removable references", recordType), ErrCodeRecordNotFound))
			return
		}
		found, err := remover.RemoveReference(r.Context(), b, blobID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if !found {
			s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("blob %s not found", blobID), ErrCodeBlobNotFound))
			return
		}
		s.writeOK(w, http.StatusOK, "reference removed", nil)
	}
}
