package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stored-file-api/internal/application/ports"
	domain "stored-file-api/internal/domain/stored_file"
	jwtSvc "stored-file-api/internal/infrastructure/jwt"
)

const testSecret = "test-secret"

type FakeStoredFileService struct {
	UploadFunc         func(ctx context.Context, req domain.UploadRequest) (*domain.StoredFile, error)
	DeleteFunc         func(ctx context.Context, fileID, actor uuid.UUID) (domain.DeleteResult, error)
	ResolveFunc        func(ctx context.Context, fileID uuid.UUID, variant domain.Variant) (*domain.ResolvedFile, error)
	OpenContentFunc    func(ctx context.Context, fileID uuid.UUID, variant domain.Variant) (*domain.ResolvedFile, io.ReadCloser, error)
	FindStoredFileFunc func(ctx context.Context, fileID uuid.UUID) (*domain.StoredFile, error)
}

func (f *FakeStoredFileService) Upload(ctx context.Context, req domain.UploadRequest) (*domain.StoredFile, error) {
	if f.UploadFunc == nil {
		return nil, errors.New("not used")
	}
	return f.UploadFunc(ctx, req)
}
func (f *FakeStoredFileService) Delete(ctx context.Context, fileID, actor uuid.UUID) (domain.DeleteResult, error) {
	if f.DeleteFunc == nil {
		return domain.DeleteResultFailed, errors.New("not used")
	}
	return f.DeleteFunc(ctx, fileID, actor)
}
func (f *FakeStoredFileService) Resolve(ctx context.Context, fileID uuid.UUID, variant domain.Variant) (*domain.ResolvedFile, error) {
	if f.ResolveFunc == nil {
		return nil, errors.New("not used")
	}
	return f.ResolveFunc(ctx, fileID, variant)
}
func (f *FakeStoredFileService) OpenContent(ctx context.Context, fileID uuid.UUID, variant domain.Variant) (*domain.ResolvedFile, io.ReadCloser, error) {
	if f.OpenContentFunc == nil {
		return nil, nil, errors.New("not used")
	}
	return f.OpenContentFunc(ctx, fileID, variant)
}
func (f *FakeStoredFileService) FindStoredFile(ctx context.Context, fileID uuid.UUID) (*domain.StoredFile, error) {
	if f.FindStoredFileFunc == nil {
		return nil, errors.New("not used")
	}
	return f.FindStoredFileFunc(ctx, fileID)
}

func setupRouter(t *testing.T, svc ports.StoredFileService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	NewStoredFileController(r, svc, zap.NewNop(), jwtSvc.New(testSecret), 64<<20)
	return r
}

func SignJWT(secret, userID string, exp time.Duration) (string, error) {
	type Claims struct {
		UserID string `json:"user_id"`
		jwtv5.RegisteredClaims
	}
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ExpiresAt: jwtv5.NewNumericDate(time.Now().Add(exp)),
		},
	}
	token := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func bearer(t *testing.T, actor uuid.UUID) map[string]string {
	t.Helper()
	tok, err := SignJWT(testSecret, actor.String(), time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func doReq(t *testing.T, r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func doUpload(t *testing.T, r *gin.Engine, objectType, fileName string, content []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if objectType != "" {
		require.NoError(t, mw.WriteField("object_type", objectType))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, RouteFiles, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestStoredFileController_Upload(t *testing.T) {
	actor := uuid.New()
	fileID := uuid.New()

	tests := []struct {
		name       string
		objectType string
		fileName   string
		content    []byte
		headers    map[string]string
		uploadErr  error
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "created",
			objectType: "PART_IMAGE",
			fileName:   "photo.png",
			content:    []byte("png-bytes"),
			headers:    bearer(t, actor),
			wantStatus: http.StatusCreated,
			wantCalled: true,
		},
		{
			name:       "missing token",
			objectType: "PART_IMAGE",
			fileName:   "photo.png",
			content:    []byte("png-bytes"),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "bad token",
			objectType: "PART_IMAGE",
			fileName:   "photo.png",
			content:    []byte("png-bytes"),
			headers:    map[string]string{"Authorization": "Bearer nope"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown object type",
			objectType: "INVOICE",
			fileName:   "a.pdf",
			content:    []byte("%PDF"),
			headers:    bearer(t, actor),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing file",
			objectType: "PART_IMAGE",
			headers:    bearer(t, actor),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "over object type limit",
			objectType: "USER_AVATAR_IMAGE",
			fileName:   "a.png",
			content:    make([]byte, 5<<20+1),
			headers:    bearer(t, actor),
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:       "domain validation",
			objectType: "PART_IMAGE",
			fileName:   "photo.png",
			content:    []byte("x"),
			headers:    bearer(t, actor),
			uploadErr:  domain.NewError(domain.KindValidation, "upload", domain.ErrFileNameTooLong),
			wantStatus: http.StatusBadRequest,
			wantCalled: true,
		},
		{
			name:       "domain size limit",
			objectType: "PART_IMAGE",
			fileName:   "photo.png",
			content:    []byte("x"),
			headers:    bearer(t, actor),
			uploadErr:  domain.NewError(domain.KindValidation, "upload", domain.ErrContentTooLarge),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCalled: true,
		},
		{
			name:       "infrastructure",
			objectType: "PART_IMAGE",
			fileName:   "photo.png",
			content:    []byte("x"),
			headers:    bearer(t, actor),
			uploadErr:  domain.NewError(domain.KindInfrastructure, "upload", errors.New("disk full")),
			wantStatus: http.StatusInternalServerError,
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *domain.UploadRequest
			svc := &FakeStoredFileService{
				UploadFunc: func(_ context.Context, req domain.UploadRequest) (*domain.StoredFile, error) {
					got = &req
					if tt.uploadErr != nil {
						return nil, tt.uploadErr
					}
					return &domain.StoredFile{UUID: fileID, Status: domain.StatusPendingScan}, nil
				},
			}
			r := setupRouter(t, svc)

			rr := doUpload(t, r, tt.objectType, tt.fileName, tt.content, tt.headers)
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			assert.Equal(t, tt.wantCalled, got != nil)

			if tt.wantStatus != http.StatusCreated {
				return
			}
			assert.Equal(t, domain.ObjectType(tt.objectType), got.ObjectType)
			assert.Equal(t, tt.fileName, got.FileName)
			assert.Equal(t, tt.content, got.Content)
			assert.Equal(t, actor, got.UploadedBy)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, fileID.String(), resp["file_id"])
			assert.Equal(t, "PENDING_SCAN", resp["status"])
		})
	}
}

func TestStoredFileController_GetStoredFile(t *testing.T) {
	id := uuid.New()
	mime := "image/png"
	uploaded := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		path       string
		file       *domain.StoredFile
		err        error
		wantStatus int
	}{
		{
			name: "found",
			path: RouteFiles + "/" + id.String(),
			file: &domain.StoredFile{
				UUID:          id,
				ObjectType:    domain.ObjectTypePartImage,
				FileName:      "photo.png",
				SizeBytes:     42,
				Status:        domain.StatusReady,
				MimeType:      &mime,
				UploadedAt:    uploaded,
				Thumb128Ready: true,
				Thumb512Ready: true,
			},
			wantStatus: http.StatusOK,
		},
		{name: "bad id", path: RouteFiles + "/nope", wantStatus: http.StatusBadRequest},
		{
			name:       "not found",
			path:       RouteFiles + "/" + id.String(),
			err:        domain.NewError(domain.KindNotFound, "find", domain.ErrNotFound),
			wantStatus: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(t, &FakeStoredFileService{
				FindStoredFileFunc: func(_ context.Context, fileID uuid.UUID) (*domain.StoredFile, error) {
					return tt.file, tt.err
				},
			})

			rr := doReq(t, r, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, id.String(), resp["file_id"])
			assert.Equal(t, "READY", resp["status"])
			assert.Equal(t, "image/png", resp["mime_type"])
			assert.Equal(t, "PART_IMAGE", resp["object_type"])
			assert.Equal(t, map[string]any{"thumb_128": true, "thumb_512": true}, resp["thumbnails"])
			assert.NotContains(t, resp, "deleted_at")
		})
	}
}

func TestStoredFileController_GetContent(t *testing.T) {
	id := uuid.New()
	payload := []byte("thumbnail-bytes")

	tests := []struct {
		name        string
		query       string
		resolved    *domain.ResolvedFile
		err         error
		wantStatus  int
		wantVariant domain.Variant
	}{
		{
			name:  "thumbnail",
			query: "?variant=thumb-128",
			resolved: &domain.ResolvedFile{
				FileID: id, Variant: domain.Variant128,
				MimeType: "image/png", SizeBytes: int64(len(payload)), FileName: "photo.png",
			},
			wantStatus:  http.StatusOK,
			wantVariant: domain.Variant128,
		},
		{
			name:  "default variant is original",
			query: "",
			resolved: &domain.ResolvedFile{
				FileID: id, Variant: domain.VariantOriginal,
				MimeType: "image/png", SizeBytes: int64(len(payload)), FileName: "photo.png",
			},
			wantStatus:  http.StatusOK,
			wantVariant: domain.VariantOriginal,
		},
		{name: "bad variant", query: "?variant=thumb-64", wantStatus: http.StatusBadRequest},
		{
			name:       "not ready",
			query:      "?variant=original",
			err:        domain.NewError(domain.KindNotFound, "resolve", domain.ErrNotFound),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "storage failure",
			query:      "?variant=original",
			err:        domain.NewError(domain.KindInfrastructure, "open_content", errors.New("permission denied")),
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requested domain.Variant
			r := setupRouter(t, &FakeStoredFileService{
				OpenContentFunc: func(_ context.Context, fileID uuid.UUID, v domain.Variant) (*domain.ResolvedFile, io.ReadCloser, error) {
					requested = v
					if tt.err != nil {
						return nil, nil, tt.err
					}
					return tt.resolved, io.NopCloser(bytes.NewReader(payload)), nil
				},
			})

			rr := doReq(t, r, http.MethodGet, RouteFiles+"/"+id.String()+"/content"+tt.query, nil)
			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			assert.Equal(t, tt.wantVariant, requested)
			assert.Equal(t, payload, rr.Body.Bytes())
			assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
			assert.Equal(t, string(tt.wantVariant), rr.Header().Get(HeaderVariant))
			assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
			assert.Contains(t, rr.Header().Get("Content-Disposition"), `filename=photo.png`)
		})
	}
}

func TestStoredFileController_Delete(t *testing.T) {
	actor := uuid.New()
	id := uuid.New()

	tests := []struct {
		name       string
		headers    map[string]string
		result     domain.DeleteResult
		err        error
		wantStatus int
	}{
		{name: "deleted", headers: bearer(t, actor), result: domain.DeleteResultDeleted, wantStatus: http.StatusNoContent},
		{name: "not found", headers: bearer(t, actor), result: domain.DeleteResultNotFound, wantStatus: http.StatusNotFound},
		{name: "failed", headers: bearer(t, actor), result: domain.DeleteResultFailed, err: errors.New("db down"), wantStatus: http.StatusInternalServerError},
		{name: "unauthorized", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotActor uuid.UUID
			r := setupRouter(t, &FakeStoredFileService{
				DeleteFunc: func(_ context.Context, fileID, a uuid.UUID) (domain.DeleteResult, error) {
					assert.Equal(t, id, fileID)
					gotActor = a
					return tt.result, tt.err
				},
			})

			rr := doReq(t, r, http.MethodDelete, RouteFiles+"/"+id.String(), tt.headers)
			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.headers != nil {
				assert.Equal(t, actor, gotActor)
			}
		})
	}
}

func TestOpsController_Ready(t *testing.T) {
	tests := []struct {
		name       string
		checks     []ReadinessCheck
		wantStatus int
	}{
		{
			name: "all up",
			checks: []ReadinessCheck{
				{Name: "db", Check: func(context.Context) error { return nil }},
				{Name: "clamd", Check: func(context.Context) error { return nil }},
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "scanner down",
			checks: []ReadinessCheck{
				{Name: "db", Check: func(context.Context) error { return nil }},
				{Name: "clamd", Check: func(context.Context) error { return errors.New("connection refused") }},
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			r := gin.New()
			NewOpsController(r, zap.NewNop(), tt.checks...)

			rr := doReq(t, r, http.MethodGet, RouteReady, nil)
			assert.Equal(t, tt.wantStatus, rr.Code)

			rr = doReq(t, r, http.MethodGet, RouteHealth, nil)
			assert.Equal(t, http.StatusOK, rr.Code)
		})
	}
}
