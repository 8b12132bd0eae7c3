package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nrzngr/exvoria-strat-management/internal/core"
	"github.com/nrzngr/exvoria-strat-management/internal/media"
	"github.com/nrzngr/exvoria-strat-management/pkg/domain"
)

// strategyRequest is the JSON body of create and update. Multipart requests
// carry the same fields as form values, image_descriptions JSON encoded, plus
// files under "images".
type strategyRequest struct {
	MapID             string            `json:"map_id"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	ChangeNotes       *string           `json:"change_notes,omitempty"`
	ImageDescriptions map[string]string `json:"image_descriptions,omitempty"`
}

type strategyResponse struct {
	Strategy      domain.StrategyDetail  `json:"strategy"`
	Version       domain.StrategyVersion `json:"version"`
	CopiedImages  map[string]string      `json:"copied_images,omitempty"`
	SkippedImages []string               `json:"skipped_images,omitempty"`
	Rejected      []rejectedFile         `json:"rejected,omitempty"`
}

func newStrategyResponse(res core.StrategyResult) strategyResponse {
	out := strategyResponse{
		Strategy:      res.Detail,
		Version:       res.Version,
		SkippedImages: res.Copied.Skipped,
		Rejected:      rejectedFiles(res.Uploads),
	}
	if len(res.Copied.Mapping) > 0 {
		out.CopiedImages = res.Copied.Mapping
	}
	return out
}

// committed returns the stored detail of a result, or nil when nothing was
// written.
func committed(res core.StrategyResult) *domain.StrategyDetail {
	if res.Detail.Strategy.ID == "" {
		return nil
	}
	return &res.Detail
}

func (s *Server) bindStrategy(c *gin.Context) (strategyRequest, []media.File, bool) {
	var req strategyRequest
	if !isMultipart(c) {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badInput(c, "invalid strategy payload", err)
			return req, nil, false
		}
		return req, nil, true
	}
	form, err := c.MultipartForm()
	if err != nil {
		s.badInput(c, "invalid multipart form", err)
		return req, nil, false
	}
	first := func(key string) (string, bool) {
		if vals := form.Value[key]; len(vals) > 0 {
			return vals[0], true
		}
		return "", false
	}
	req.MapID, _ = first("map_id")
	req.Title, _ = first("title")
	req.Description, _ = first("description")
	if notes, ok := first("change_notes"); ok {
		req.ChangeNotes = &notes
	}
	if raw, ok := first("image_descriptions"); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.ImageDescriptions); err != nil {
			s.badRequest(c, "image_descriptions must be a JSON object of image id to text")
			return req, nil, false
		}
	}
	files, err := s.readFiles(form.File["images"])
	if err != nil {
		s.badInput(c, "read upload", err)
		return req, nil, false
	}
	return req, files, true
}

func (s *Server) searchStrategies(c *gin.Context) {
	out, err := s.svc.SearchStrategies(c.Request.Context(), c.Query("q"), c.Query("map_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

func (s *Server) createStrategy(c *gin.Context) {
	req, files, ok := s.bindStrategy(c)
	if !ok {
		return
	}
	res, err := s.svc.CreateStrategy(c.Request.Context(), core.StrategyInput{
		MapID:       req.MapID,
		Title:       req.Title,
		Description: req.Description,
		ChangeNotes: req.ChangeNotes,
		Images:      files,
	})
	if err != nil {
		s.failWith(c, err, committed(res))
		return
	}
	c.JSON(http.StatusCreated, newStrategyResponse(res))
}

func (s *Server) getStrategy(c *gin.Context) {
	detail, err := s.svc.GetStrategy(c.Request.Context(), c.Param("strategyID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) updateStrategy(c *gin.Context) {
	req, files, ok := s.bindStrategy(c)
	if !ok {
		return
	}
	res, err := s.svc.UpdateStrategy(c.Request.Context(), c.Param("strategyID"), core.StrategyUpdate{
		Title:             req.Title,
		Description:       req.Description,
		ChangeNotes:       req.ChangeNotes,
		ImageDescriptions: req.ImageDescriptions,
		MapID:             req.MapID,
		Images:            files,
	})
	if err != nil {
		s.failWith(c, err, committed(res))
		return
	}
	c.JSON(http.StatusOK, newStrategyResponse(res))
}

func (s *Server) deleteStrategy(c *gin.Context) {
	if err := s.svc.DeleteStrategy(c.Request.Context(), c.Param("strategyID")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listVersions(c *gin.Context) {
	versions, err := s.svc.ListVersions(c.Request.Context(), c.Param("strategyID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func (s *Server) getVersion(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		s.badRequest(c, "version number must be a positive integer")
		return
	}
	detail, err := s.svc.GetVersion(c.Request.Context(), c.Param("strategyID"), number)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) uploadImages(c *gin.Context) {
	if !isMultipart(c) {
		s.badRequest(c, "expected multipart/form-data with \"images\" files")
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		s.badInput(c, "invalid multipart form", err)
		return
	}
	files, err := s.readFiles(form.File["images"])
	if err != nil {
		s.badInput(c, "read upload", err)
		return
	}
	if len(files) == 0 {
		s.badRequest(c, "no files under \"images\"")
		return
	}
	attached, report, err := s.svc.UploadImages(c.Request.Context(), c.Param("strategyID"), files)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"images": attached, "rejected": rejectedFiles(report)})
}

type altTextRequest struct {
	AltText *string `json:"alt_text"`
}

func (s *Server) updateImage(c *gin.Context) {
	var req altTextRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AltText == nil {
		s.badRequest(c, "body must be {\"alt_text\": string}")
		return
	}
	img, err := s.svc.UpdateImageDescription(c.Request.Context(), c.Param("imageID"), *req.AltText)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, img)
}

func (s *Server) deleteImage(c *gin.Context) {
	if err := s.svc.DeleteImage(c.Request.Context(), c.Param("imageID")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
