package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/stalberm/osu-cs493-assignment-4/internal/entity"
	"github.com/stalberm/osu-cs493-assignment-4/internal/photo"
)

type Gateway struct {
	photo   *photo.Service
	echo    *echo.Echo
	address string
}

type GatewayConfig struct {
	Photo   *photo.Service
	Address string
	// BodyLimit bounds multipart uploads, echo syntax ("32M").
	BodyLimit string
}

func New(c GatewayConfig) *Gateway {
	e := echo.New()
	e.HideBanner = true

	g := &Gateway{
		photo:   c.Photo,
		echo:    e,
		address: c.Address,
	}

	e.Use(
		middleware.Recover(),
		middleware.Logger(),
	)
	if c.BodyLimit != "" {
		e.Use(middleware.BodyLimit(c.BodyLimit))
	}

	e.POST("/photos", g.hdlrPhotoCreate)
	e.GET("/photos/:id", g.hdlrPhotoMeta)
	e.GET("/media/photos/:id", g.hdlrMediaPhoto)
	e.GET("/media/thumbs/:id", g.hdlrMediaThumb)

	return g
}

func (g *Gateway) Run() error {
	return g.echo.Start(g.address)
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (g *Gateway) Handler() http.Handler {
	return g.echo
}

func (g *Gateway) hdlrPhotoCreate(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request is missing an image part")
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open image part: %w", err)
	}
	defer src.Close()

	ref, err := g.photo.Ingest(c.Request().Context(), photo.IngestRequest{
		BusinessID:  c.FormValue("businessId"),
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Body:        src,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, ref)
}

func (g *Gateway) hdlrPhotoMeta(c echo.Context) error {
	meta, err := g.photo.Metadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, meta)
}

func (g *Gateway) hdlrMediaPhoto(c echo.Context) error {
	object, err := g.photo.OpenOriginal(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	defer object.Content.Close()

	return c.Stream(http.StatusOK, object.Meta.ContentType, object.Content)
}

func (g *Gateway) hdlrMediaThumb(c echo.Context) error {
	object, err := g.photo.OpenDerivative(c.Request().Context(), c.Param("id"))
	if err != nil {
		// A thumbnail queried before its job has been processed is an
		// expected race, not a server error.
		return toHTTPError(err)
	}
	defer object.Content.Close()

	return c.Stream(http.StatusOK, object.Meta.ContentType, object.Content)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "requested resource does not exist")
	case errors.Is(err, entity.ErrUnsupportedMedia), errors.Is(err, entity.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, "request body is not a valid photo object")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "an error occurred, try again later").SetInternal(err)
	}
}
