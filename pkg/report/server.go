// Package report serves collected data over HTTP: a JSON API for
// summaries and per-location posts, a chart dashboard, and the
// Prometheus metrics endpoint.
package report

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weibogeo/pkg/logger"
	"weibogeo/pkg/storage"
)

// Server exposes the report endpoints over one echo instance.
type Server struct {
	echo *echo.Echo
	db   *storage.Database
	log  logger.Logger
	addr string
}

// NewServer builds the report server over the given database.
func NewServer(db *storage.Database, addr string, log logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, db: db, log: log, addr: addr}

	e.GET("/", s.handleDashboard)
	e.GET("/api/summary", s.handleSummary)
	e.GET("/api/locations", s.handleLocations)
	e.GET("/api/locations/:name", s.handleLocationPosts)
	e.GET("/api/posts/top", s.handleTopPosts)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Start runs the server until Shutdown is called.
func (s *Server) Start() error {
	s.log.InfoWithFields("report server listening", map[string]interface{}{
		"addr": s.addr,
	})
	if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(c echo.Context) error {
	ctx := c.Request().Context()

	total, err := s.db.TotalPosts(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	runs, err := s.db.RecentRuns(ctx, 10)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	stats, err := s.db.LocationStats(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"total_posts": total,
		"locations":   stats,
		"recent_runs": runs,
	})
}

func (s *Server) handleLocations(c echo.Context) error {
	stats, err := s.db.LocationStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleLocationPosts(c echo.Context) error {
	name := c.Param("name")

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be 1..1000")
		}
		limit = parsed
	}

	posts, err := s.db.PostsByLocation(c.Request().Context(), name, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, posts)
}

func (s *Server) handleTopPosts(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be 1..100")
		}
		limit = parsed
	}

	posts, err := s.db.TopPosts(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, posts)
}

func (s *Server) handleDashboard(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := s.db.LocationStats(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	runs, err := s.db.RecentRuns(ctx, 20)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	reasons, err := s.db.StopReasonStats(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	top, err := s.db.TopPosts(ctx, 10)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Posts by location"}),
	)
	var barX []string
	var barY []opts.BarData
	for _, stat := range stats {
		barX = append(barX, stat.Location)
		barY = append(barY, opts.BarData{Value: stat.Posts})
	}
	bar.SetXAxis(barX).AddSeries("posts", barY)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Posts per run"}),
	)
	var lineX []string
	var lineY []opts.LineData
	// RecentRuns is newest first, the chart reads oldest to newest
	for i := len(runs) - 1; i >= 0; i-- {
		lineX = append(lineX, runs[i].StartedAt.Format("01-02 15:04"))
		lineY = append(lineY, opts.LineData{Value: runs[i].TotalPosts})
	}
	line.SetXAxis(lineX).AddSeries("posts", lineY)

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Stop reasons"}),
	)
	var pieData []opts.PieData
	for _, stat := range reasons {
		pieData = append(pieData, opts.PieData{Name: stat.Reason, Value: stat.Count})
	}
	pie.AddSeries("stop reasons", pieData)

	topBar := charts.NewBar()
	topBar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Top posts by engagement"}),
	)
	var topX []string
	var topY []opts.BarData
	for _, post := range top {
		label := post.ScreenName
		if label == "" {
			label = post.Mid
		}
		topX = append(topX, label)
		topY = append(topY, opts.BarData{
			Value: post.RepostsCount + post.CommentsCount + post.AttitudesCount,
		})
	}
	topBar.SetXAxis(topX).AddSeries("engagement", topY)

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	if err := bar.Render(c.Response()); err != nil {
		return err
	}
	if err := pie.Render(c.Response()); err != nil {
		return err
	}
	if err := line.Render(c.Response()); err != nil {
		return err
	}
	return topBar.Render(c.Response())
}
