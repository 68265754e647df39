package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/clamsproject/spoken-lid/cmd/lid/lid"
	"github.com/clamsproject/spoken-lid/cmd/lid/metadata"
	"github.com/clamsproject/spoken-lid/cmd/lid/mmif"

	"github.com/gin-gonic/gin"
)

const maxBodySize = 64 << 20

func (s *Service) initRouter() {
	s.router.GET("/", s.handleMetadata)
	s.router.POST("/", s.handleAnnotate)
	s.router.PUT("/", s.handleAnnotate)
}

func (s *Service) handleMetadata(c *gin.Context) {
	c.JSON(http.StatusOK, metadata.New(s.cfg))
}

func (s *Service) handleAnnotate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	body, err := c.GetRawData()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := mmif.Parse(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params, pretty := queryParams(c.Request.URL.Query())

	cfg := s.cfg
	cfg.FromMap(params)
	if err := cfg.IsValid(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	p, err := s.pipelineFor(cfg)
	if err != nil {
		slog.Error("failed to prepare pipeline", slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	out, err := p.Run(c.Request.Context(), m)
	if err != nil {
		slog.Error("annotation failed", slog.String("err", err.Error()))
		status = http.StatusInternalServerError
		if !errors.Is(err, lid.ErrFormat) {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
	}

	var buf bytes.Buffer
	if err := out.Write(&buf, pretty); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(status, "application/json", buf.Bytes())
}

// queryParams converts query string parameters into config keys. camelCase
// names are accepted as well, e.g. modelSize for model_size.
func queryParams(q url.Values) (map[string]any, bool) {
	params := make(map[string]any, len(q))
	var pretty bool
	for k, vals := range q {
		if len(vals) == 0 {
			continue
		}
		key := snakeCase(k)
		if key == "pretty" {
			pretty, _ = strconv.ParseBool(vals[0])
			if vals[0] == "" {
				pretty = true
			}
			continue
		}
		params[key] = vals[0]
	}
	return params, pretty
}

func snakeCase(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}
