package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/internal/services"
	"github.com/Gopher0727/GroupChat/internal/storage"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

// 单次上传的总大小上限
const maxUploadBytes = 32 << 20

// 文件类别, 仅供前端展示参考
const (
	CategoryImage    = "image"
	CategoryVideo    = "video"
	CategoryDocument = "document"
)

type UploadedFile struct {
	URL          string `json:"url"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	Mime         string `json:"mime"`
	Category     string `json:"category"`
}

type UploadResponse struct {
	Files []UploadedFile `json:"files"`
}

// FileHandler 附件上传
type FileHandler struct {
	blobs storage.BlobStore
	log   *logger.Logger
}

func NewFileHandler(blobs storage.BlobStore, log *logger.Logger) *FileHandler {
	return &FileHandler{blobs: blobs, log: log}
}

// Upload 接收任意字段名的 multipart 文件
func (h *FileHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		h.log.DebugContext(c.Request.Context(), "invalid multipart form", zap.Error(err))
		respondError(c, h.log, services.ErrInvalidBody)
		return
	}

	resp := UploadResponse{Files: []UploadedFile{}}
	for _, headers := range form.File {
		for _, fh := range headers {
			file, err := h.save(c, fh)
			if err != nil {
				respondError(c, h.log, err)
				return
			}
			resp.Files = append(resp.Files, file)
		}
	}
	if len(resp.Files) == 0 {
		respondError(c, h.log, services.ErrMissingParams)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FileHandler) save(c *gin.Context, fh *multipart.FileHeader) (UploadedFile, error) {
	src, err := fh.Open()
	if err != nil {
		return UploadedFile{}, err
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return UploadedFile{}, err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return UploadedFile{}, err
	}

	url, size, err := h.blobs.Save(c.Request.Context(), fh.Filename, src)
	if err != nil {
		return UploadedFile{}, err
	}
	return UploadedFile{
		URL:          url,
		OriginalName: fh.Filename,
		Size:         size,
		Mime:         mtype.String(),
		Category:     categoryOf(mtype),
	}, nil
}

func categoryOf(m *mimetype.MIME) string {
	for ; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return CategoryImage
		case strings.HasPrefix(m.String(), "video/"):
			return CategoryVideo
		}
	}
	return CategoryDocument
}
