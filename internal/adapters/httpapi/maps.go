package httpapi

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nrzngr/exvoria-strat-management/internal/core"
)

func (s *Server) listMaps(c *gin.Context) {
	maps, err := s.svc.SearchMaps(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"maps": maps})
}

func (s *Server) createMap(c *gin.Context) {
	var in core.MapInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badInput(c, "invalid map payload", err)
		return
	}
	m, err := s.svc.CreateMap(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) getMap(c *gin.Context) {
	detail, err := s.svc.GetMapDetail(c.Request.Context(), c.Param("mapID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) updateMap(c *gin.Context) {
	var in core.MapInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badInput(c, "invalid map payload", err)
		return
	}
	m, err := s.svc.UpdateMap(c.Request.Context(), c.Param("mapID"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) deleteMap(c *gin.Context) {
	if err := s.svc.DeleteMap(c.Request.Context(), c.Param("mapID")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setThumbnail(c *gin.Context) {
	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		s.badRequest(c, "multipart field \"file\" is required")
		return
	}
	if err != nil {
		s.badInput(c, "invalid multipart form", err)
		return
	}
	files, err := s.readFiles([]*multipart.FileHeader{fh})
	if err != nil {
		s.badInput(c, "read upload", err)
		return
	}
	m, err := s.svc.SetMapThumbnail(c.Request.Context(), c.Param("mapID"), files[0])
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) listMapStrategies(c *gin.Context) {
	out, err := s.svc.ListStrategies(c.Request.Context(), c.Param("mapID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}
