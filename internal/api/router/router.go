package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/ai-gallery/internal/api/handlers/gallery"
	"github.com/aliskhannn/ai-gallery/internal/api/handlers/jobs"
	"github.com/aliskhannn/ai-gallery/internal/middleware"
)

// Setup registers the gallery routes and, when jh is not nil, the jobs API.
func Setup(h *gallery.Handler, jh *jobs.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/", h.Health)             // liveness banner
	r.POST("/generate", h.Generate)  // synchronous generation
	r.GET("/gallery", h.List)        // newest images with captions
	r.GET("/gallery/:name", h.Image) // stored image bytes

	if jh != nil {
		api := r.Group("/api")

		api.POST("/jobs", jh.Create) // queue a generation
		api.GET("/jobs/:id", jh.Get) // generation status
	}

	return r
}
