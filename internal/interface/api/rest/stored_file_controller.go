package rest

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stored-file-api/internal/application/ports"
	domain "stored-file-api/internal/domain/stored_file"
	"stored-file-api/internal/interface/api/rest/dto/stored_file"
	"stored-file-api/internal/interface/api/rest/middleware"
	"stored-file-api/internal/interface/api/rest/validator"
)

// HeaderVariant names the variant actually served, which differs from the
// requested one after a fallback to the original.
const HeaderVariant = "X-File-Variant"

type StoredFileController struct {
	storedFileService ports.StoredFileService
	logger            *zap.Logger
	maxBodyBytes      int64
}

func NewStoredFileController(
	r *gin.Engine,
	storedFileService ports.StoredFileService,
	logger *zap.Logger,
	tokens ports.ActorTokens,
	maxBodyBytes int64,
) *StoredFileController {
	sfc := &StoredFileController{
		storedFileService: storedFileService,
		logger:            logger,
		maxBodyBytes:      maxBodyBytes,
	}

	r.POST(RouteFiles, middleware.AuthMiddleware(tokens), sfc.UploadHandler)
	r.GET(RouteFile, sfc.GetStoredFileHandler)
	r.GET(RouteFileContent, sfc.GetContentHandler)
	r.DELETE(RouteFile, middleware.AuthMiddleware(tokens), sfc.DeleteHandler)

	return sfc
}

func (sfc *StoredFileController) UploadHandler(c *gin.Context) {
	if sfc.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sfc.maxBodyBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
	}

	var (
		fileName string
		size     int64
	)
	if fh != nil {
		fileName, size = fh.Filename, fh.Size
	}
	if errs := validator.ValidateUploadForm(c.PostForm("object_type"), fileName, size); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	ot, _ := domain.ParseObjectType(c.PostForm("object_type"))
	if size > ot.MaxBytes() {
		c.JSON(
			http.StatusRequestEntityTooLarge,
			gin.H{"error": "file exceeds the size limit for " + ot.String()},
		)
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, ot.MaxBytes()+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}

	sf, err := sfc.storedFileService.Upload(c.Request.Context(), domain.UploadRequest{
		ObjectType: ot,
		FileName:   fileName,
		Content:    content,
		UploadedBy: middleware.ActorFrom(c),
	})
	if err != nil {
		sfc.writeError(c, "Upload()", err)
		return
	}

	c.JSON(http.StatusCreated, stored_file.ToUploadResponse(*sf))
}

func (sfc *StoredFileController) GetStoredFileHandler(c *gin.Context) {
	ok, id := validator.IsUUID(c.Param("file_id"))
	if !ok {
		c.JSON(
			http.StatusBadRequest,
			gin.H{"error": "file_id must be a valid UUID"},
		)
		return
	}

	sf, err := sfc.storedFileService.FindStoredFile(c.Request.Context(), id)
	if err != nil {
		sfc.writeError(c, "FindStoredFile()", err)
		return
	}

	c.JSON(http.StatusOK, stored_file.ToResponseStoredFile(*sf))
}

func (sfc *StoredFileController) GetContentHandler(c *gin.Context) {
	ok, id := validator.IsUUID(c.Param("file_id"))
	if !ok {
		c.JSON(
			http.StatusBadRequest,
			gin.H{"error": "file_id must be a valid UUID"},
		)
		return
	}
	variant, err := domain.ParseVariant(c.Query("variant"))
	if err != nil {
		c.JSON(
			http.StatusBadRequest,
			gin.H{"error": "variant must be one of original, thumb-128, thumb-512"},
		)
		return
	}

	res, f, err := sfc.storedFileService.OpenContent(c.Request.Context(), id, variant)
	if err != nil {
		sfc.writeError(c, "OpenContent()", err)
		return
	}
	defer f.Close()

	c.DataFromReader(http.StatusOK, res.SizeBytes, res.MimeType, f, map[string]string{
		"Content-Disposition":    mime.FormatMediaType("inline", map[string]string{"filename": res.FileName}),
		"X-Content-Type-Options": "nosniff",
		HeaderVariant:            string(res.Variant),
		"Cache-Control":          "private, max-age=300",
	})
}

func (sfc *StoredFileController) DeleteHandler(c *gin.Context) {
	ok, id := validator.IsUUID(c.Param("file_id"))
	if !ok {
		c.JSON(
			http.StatusBadRequest,
			gin.H{"error": "file_id must be a valid UUID"},
		)
		return
	}

	res, err := sfc.storedFileService.Delete(c.Request.Context(), id, middleware.ActorFrom(c))
	switch res {
	case domain.DeleteResultDeleted:
		c.Status(http.StatusNoContent)
	case domain.DeleteResultNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
	default:
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "failed to delete file"},
		)
		sfc.logger.Error("Delete() error", zap.String("file_id", id.String()), zap.Error(err))
	}
}

// writeError maps domain error kinds onto HTTP statuses.
func (sfc *StoredFileController) writeError(c *gin.Context, op string, err error) {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrContentTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error()})
	case domain.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
	case domain.KindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": "file is being modified, retry"})
	default:
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "internal error"},
		)
		sfc.logger.Error(op+" error", zap.Error(err))
	}
}
