package http

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/core/usecases"
)

type sourceBody struct {
	EntityType string   `json:"entity_type"`
	Bundle     string   `json:"bundle"`
	EntityIDs  []string `json:"entity_ids"`
	Limit      int      `json:"limit"`
}

type themerBody struct {
	Plugin   string                `json:"plugin"`
	Preset   string                `json:"preset"`
	Settings domain.ThemerSettings `json:"settings"`
	Legend   *domain.LegendConfig  `json:"legend"`
}

type renderBody struct {
	Config   json.RawMessage `json:"config"`
	Features json.RawMessage `json:"features"`
	Source   *sourceBody     `json:"source"`
	Themer   *themerBody     `json:"themer"`
}

// selection resolves a preset name or an inline plugin choice.
func (t *themerBody) selection(reg *usecases.ThemerRegistry) (domain.ThemerSelection, bool) {
	if t.Preset == "" {
		return domain.ThemerSelection{PluginID: t.Plugin, Settings: t.Settings, Legend: t.Legend}, true
	}
	sel, ok := reg.Preset(t.Preset)
	if !ok {
		return sel, false
	}
	if t.Legend != nil {
		sel.Legend = t.Legend
	}
	return sel, true
}

func present(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}

// RenderMapHandler draws a listing map and returns the commands for the
// browser runtime.
// POST /v1/maps/render
func RenderMapHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body renderBody
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return errBadRequest(c, "invalid request body: "+err.Error())
		}
		cfg, err := deps.decodeMapConfig(body.Config)
		if err != nil {
			return errDomain(c, err)
		}

		req := usecases.RenderRequest{Config: cfg}
		switch {
		case present(body.Features) && body.Source != nil:
			return errBadRequest(c, "features and source are mutually exclusive")
		case present(body.Features):
			req.GeoJSON = body.Features
		case body.Source != nil:
			req.Source = &ports.FeatureQuery{
				EntityType: body.Source.EntityType,
				Bundle:     body.Source.Bundle,
				EntityIDs:  body.Source.EntityIDs,
				Limit:      body.Source.Limit,
			}
		}
		if body.Themer != nil {
			sel, ok := body.Themer.selection(deps.Themers)
			if !ok {
				return errNotFound(c, "themer preset not found: "+body.Themer.Preset)
			}
			req.Themer = &sel
		}

		res, err := deps.Pipeline.Render(c.UserContext(), req)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(res)
	}
}

// ListThemersHandler returns the registered themer definitions.
// GET /v1/themers?offset=&limit=
func ListThemersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, pg := paginate(c, deps.Themers.List())
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// GetThemerHandler returns one themer definition.
// GET /v1/themers/:id
func GetThemerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		def, ok := deps.Themers.Definition(c.Params("id"))
		if !ok {
			return errNotFound(c, "themer not found")
		}
		return c.JSON(def)
	}
}

// ListPresetsHandler returns the named themer selections.
// GET /v1/themers/presets
func ListPresetsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		names := deps.Themers.Presets()
		out := make([]fiber.Map, 0, len(names))
		for _, n := range names {
			sel, _ := deps.Themers.Preset(n)
			out = append(out, fiber.Map{"name": n, "selection": sel})
		}
		return c.JSON(fiber.Map{"data": out})
	}
}

// LegendHandler builds the legend of a themer from posted settings.
// POST /v1/themers/:id/legend
func LegendHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			Settings domain.ThemerSettings `json:"settings"`
			Legend   *domain.LegendConfig  `json:"legend"`
		}
		if len(c.Body()) > 0 {
			if err := json.Unmarshal(c.Body(), &body); err != nil {
				return errBadRequest(c, "invalid request body: "+err.Error())
			}
		}
		table, err := deps.Pipeline.Legend(domain.ThemerSelection{
			PluginID: c.Params("id"),
			Settings: body.Settings,
			Legend:   body.Legend,
		})
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(table)
	}
}

// ForwardGeocodeHandler resolves an address.
// GET /v1/geocode/forward?q=
func ForwardGeocodeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Geocode == nil {
			return errUnavailable(c, "geocoding not configured")
		}
		q := strings.TrimSpace(c.Query("q"))
		if q == "" {
			return errBadRequest(c, "q is required")
		}
		res, ok := deps.Geocode.Forward(c.UserContext(), q)
		if !ok {
			return errNotFound(c, "no result for address")
		}
		return c.JSON(res)
	}
}

// ReverseGeocodeHandler resolves a coordinate to an address.
// GET /v1/geocode/reverse?lat=&lng=
func ReverseGeocodeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Geocode == nil {
			return errUnavailable(c, "geocoding not configured")
		}
		p, err := domain.ParseGeoPoint(c.Query("lat"), c.Query("lng"))
		if err != nil {
			return errBadRequest(c, "lat and lng must be valid coordinates")
		}
		addr, ok := deps.Geocode.Reverse(c.UserContext(), p)
		if !ok {
			return errNotFound(c, "no address for point")
		}
		return c.JSON(domain.GeocodeResult{Point: p.Round6(), FormattedAddress: addr})
	}
}
