package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"traffic-profile-service/internal/config"
	"traffic-profile-service/internal/db"
	"traffic-profile-service/internal/http/middleware"
	"traffic-profile-service/internal/ingest"
	"traffic-profile-service/internal/model"
	"traffic-profile-service/internal/sections"
	"traffic-profile-service/internal/service"
	"traffic-profile-service/internal/session"
	"traffic-profile-service/internal/storage"
)

type Handler struct {
	uploads  *service.UploadService
	reports  *service.ReportService
	resolver *sections.Resolver
	sessions *session.Manager
	archive  *storage.R2Client
	config   *config.Config
	log      zerolog.Logger
}

func NewHandler(
	uploads *service.UploadService,
	reports *service.ReportService,
	resolver *sections.Resolver,
	sessions *session.Manager,
	archive *storage.R2Client,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		uploads:  uploads,
		reports:  reports,
		resolver: resolver,
		sessions: sessions,
		archive:  archive,
		config:   cfg,
		log:      log,
	}
}

func (h *Handler) Register(r *gin.Engine, sessionMiddleware gin.HandlerFunc) {
	r.POST("/connect", h.connect)

	protected := r.Group("/")
	protected.Use(sessionMiddleware)
	{
		protected.POST("/disconnect_db", h.disconnect)
		protected.POST("/upload", h.upload)
		protected.POST("/confirm-overwrite", h.confirmOverwrite)
		protected.GET("/get_sections", h.getSections)
		protected.GET("/get_location", h.getLocation)
		protected.POST("/plot", h.plot)
	}
}

// connect verifies the submitted database credentials by opening and pinging
// a connection, then issues the session token that later requests carry.
func (h *Handler) connect(c *gin.Context) {
	creds := session.Credentials{
		Host:     c.DefaultPostForm("db_host", "localhost"),
		Port:     c.DefaultPostForm("db_port", "5432"),
		Name:     c.PostForm("db_name"),
		User:     c.PostForm("db_user"),
		Password: c.PostForm("db_password"),
	}
	if creds.Name == "" || creds.User == "" {
		c.JSON(http.StatusBadRequest, errorResponse("db_name and db_user are required"))
		return
	}

	database, err := db.Open(creds.DSN(), h.config, h.log)
	if err != nil {
		h.log.Warn().Err(err).Str("db_name", creds.Name).Msg("database connection attempt failed")
		c.JSON(http.StatusBadRequest, errorResponse("could not connect to database"))
		return
	}
	defer db.Close(database)

	if err := db.HealthCheck(c.Request.Context(), database); err != nil {
		h.log.Warn().Err(err).Str("db_name", creds.Name).Msg("database ping failed")
		c.JSON(http.StatusBadRequest, errorResponse("could not connect to database"))
		return
	}

	token, err := h.sessions.IssueToken(creds)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to issue session token")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	h.log.Info().Str("db_name", creds.Name).Str("db_host", creds.Host).Msg("database session opened")
	c.JSON(http.StatusOK, gin.H{
		"message": "connected",
		"token":   token,
	})
}

// disconnect acknowledges the client dropping its selection. Sessions are
// stateless tokens, so there is nothing to tear down server-side.
func (h *Handler) disconnect(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "disconnected"})
}

// openSessionDB opens a request-scoped handle for the session's database.
// On failure it writes the error response and returns false.
func (h *Handler) openSessionDB(c *gin.Context) (*gorm.DB, bool) {
	creds, ok := middleware.Credentials(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("no database assigned"))
		return nil, false
	}

	database, err := db.Open(creds.DSN(), h.config, h.log)
	if err != nil {
		h.log.Error().Err(err).Str("db_name", creds.Name).Msg("failed to open session database")
		c.JSON(http.StatusInternalServerError, errorResponse("could not connect to database"))
		return nil, false
	}
	return database, true
}

func (h *Handler) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("failed to read uploaded file"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("failed to read uploaded file"))
		return
	}

	database, ok := h.openSessionDB(c)
	if !ok {
		return
	}
	defer db.Close(database)

	result, err := h.uploads.ProcessUpload(c.Request.Context(), database, fileHeader.Filename, bytes.NewReader(content))
	if err != nil {
		h.writeUploadError(c, fileHeader.Filename, err)
		return
	}

	h.archiveExport(c, result.SegmentCode, fileHeader.Filename, content)

	if result.RequiresConfirmation {
		c.JSON(http.StatusConflict, gin.H{
			"requires_confirmation": true,
			"message":               "records for this period already exist, confirm to overwrite",
			"temp_id":               result.Handle.String(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "file processed",
		"rows":    result.Rows,
	})
}

func (h *Handler) writeUploadError(c *gin.Context, filename string, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidFilename),
		errors.Is(err, ingest.ErrMissingColumns),
		errors.Is(err, ingest.ErrExtraColumns),
		errors.Is(err, ingest.ErrTimestampParse):
		h.log.Warn().Err(err).Str("filename", filename).Msg("rejected upload")
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case strings.HasPrefix(err.Error(), "processing error"):
		h.log.Warn().Err(err).Str("filename", filename).Msg("upload processing failed")
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("filename", filename).Msg("failed to process upload")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

// archiveExport pushes the raw export to object storage. Archival is best
// effort; a missing or failing bucket never fails the upload.
func (h *Handler) archiveExport(c *gin.Context, segment, filename string, content []byte) {
	if h.archive == nil {
		return
	}

	key := "exports/" + segment + "/" + filename
	if _, err := h.archive.ArchiveExport(c.Request.Context(), key, bytes.NewReader(content), int64(len(content))); err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("failed to archive export")
	}
}

func (h *Handler) confirmOverwrite(c *gin.Context) {
	var req struct {
		TempID    string `json:"temp_id" binding:"required"`
		Overwrite bool   `json:"overwrite_request"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	handle, err := uuid.Parse(req.TempID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("temp_id is not a valid identifier"))
		return
	}

	database, ok := h.openSessionDB(c)
	if !ok {
		return
	}
	defer db.Close(database)

	if err := h.uploads.ConfirmOverwrite(c.Request.Context(), database, handle, req.Overwrite); err != nil {
		if errors.Is(err, service.ErrNoStagedData) {
			c.JSON(http.StatusNotFound, errorResponse(err.Error()))
			return
		}
		h.log.Error().Err(err).Str("temp_id", req.TempID).Msg("failed to confirm staged upload")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "data saved",
	})
}

func (h *Handler) getSections(c *gin.Context) {
	database, ok := h.openSessionDB(c)
	if !ok {
		return
	}
	defer db.Close(database)

	labels, err := h.resolver.ListSections(c.Request.Context(), database)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list sections")
		c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"sections": labels})
}

func (h *Handler) getLocation(c *gin.Context) {
	label := strings.TrimSpace(c.Query("section_number"))
	if label == "" {
		c.JSON(http.StatusBadRequest, errorResponse("section_number parameter is required"))
		return
	}

	n, e, err := h.resolver.Location(label)
	if err != nil {
		switch {
		case errors.Is(err, sections.ErrLabelPattern), errors.Is(err, sections.ErrNoMatch):
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		case errors.Is(err, sections.ErrLocationNotFound):
			c.JSON(http.StatusNotFound, errorResponse(err.Error()))
		default:
			h.log.Error().Err(err).Str("section", label).Msg("failed to resolve location")
			c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"N_wgs84": n,
		"E_wgs84": e,
	})
}

func (h *Handler) plot(c *gin.Context) {
	req := service.ReportRequest{
		Primary: service.DateRange{
			Start: c.PostForm("start_date_1"),
			End:   c.PostForm("end_date_1"),
		},
		Comparison: service.DateRange{
			Start: c.PostForm("start_date_2"),
			End:   c.PostForm("end_date_2"),
		},
		CarType:      model.ParseCarType(c.PostForm("car_type")),
		DayOfWeek:    c.PostForm("day_of_week"),
		SectionLabel: strings.TrimSpace(c.PostForm("section_number")),
	}

	database, ok := h.openSessionDB(c)
	if !ok {
		return
	}
	defer db.Close(database)

	report, err := h.reports.BuildReport(c.Request.Context(), database, req)
	if err != nil {
		h.writeReportError(c, req, err)
		return
	}

	x := make([]string, len(report.Primary))
	y1 := make([]float64, len(report.Primary))
	for i, p := range report.Primary {
		x[i] = p.Time
		y1[i] = p.Count
	}

	chartData := gin.H{
		"x":  x,
		"y1": y1,
		"labels": gin.H{
			"title": report.Title,
			"xaxis": "Czas",
			"yaxis": "Liczba samochodów",
		},
		"start_date_1": req.Primary.Start,
		"end_date_1":   req.Primary.End,
	}
	if report.Comparison != nil {
		y2 := make([]float64, len(report.Comparison))
		for i, p := range report.Comparison {
			y2[i] = p.Count
		}
		chartData["y2"] = y2
		chartData["start_date_2"] = req.Comparison.Start
		chartData["end_date_2"] = req.Comparison.End
	}

	c.JSON(http.StatusOK, gin.H{
		"chart_data": chartData,
		"csv_data":   report.CSV,
	})
}

func (h *Handler) writeReportError(c *gin.Context, req service.ReportRequest, err error) {
	switch {
	case errors.Is(err, service.ErrNoData):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, sections.ErrLabelPattern),
		errors.Is(err, sections.ErrNoMatch):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("section", req.SectionLabel).Msg("failed to build report")
		c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
