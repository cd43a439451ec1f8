package api

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/openmem/openmem-server/internal/api/recovery"
	"github.com/openmem/openmem-server/internal/categorize"
	"github.com/openmem/openmem-server/internal/services"
	"github.com/openmem/openmem-server/internal/store"
	"github.com/openmem/openmem-server/internal/vector"
)

// NewRouter wires services to HTTP routes.
func NewRouter(st store.Store, idx vector.Index, cat categorize.Categorizer, isHealthy func() bool, log zerolog.Logger) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.New(log))

	userSvc := services.NewUsers(st)
	accessSvc := services.NewAccessResolver(st)
	reconciler := services.NewReconciler(st, cat, log)
	memorySvc := services.NewMemories(st, idx, reconciler, accessSvc, log)
	lifecycleSvc := services.NewLifecycle(st, idx, log)
	appSvc := services.NewApps(st, idx, log)

	// Users
	user := NewUserHandler(userSvc, memorySvc)
	root.HandleFunc("/api/v1/users", user.CreateOrGetUser).Methods("POST")
	root.HandleFunc("/api/v1/users/{userId}", user.GetUser).Methods("GET")
	root.HandleFunc("/api/v1/users/{userId}/metadata", user.UpdateUserMetadata).Methods("PATCH")
	root.HandleFunc("/api/v1/users/{userId}/stats", user.GetUserStats).Methods("GET")
	root.HandleFunc("/api/v1/users/{userId}/categories", user.GetUserCategories).Methods("GET")

	// Memories
	memory := NewMemoryHandler(userSvc, memorySvc, lifecycleSvc)
	root.HandleFunc("/api/v1/users/{userId}/memories", memory.CreateMemories).Methods("POST")
	root.HandleFunc("/api/v1/users/{userId}/memories", memory.ListMemories).Methods("GET")
	root.HandleFunc("/api/v1/users/{userId}/memories/search", memory.SearchMemories).Methods("GET")
	root.HandleFunc("/api/v1/users/{userId}/memories/delete-batch", memory.DeleteMemoriesBatch).Methods("POST")
	root.HandleFunc("/api/v1/users/{userId}/memories/{memoryId}/related", memory.GetRelatedMemories).Methods("GET")
	root.HandleFunc("/api/v1/memories/{memoryId}", memory.GetMemory).Methods("GET")
	root.HandleFunc("/api/v1/memories/{memoryId}", memory.UpdateMemory).Methods("PUT")
	root.HandleFunc("/api/v1/memories/{memoryId}", memory.DeleteMemory).Methods("DELETE")
	root.HandleFunc("/api/v1/memories/{memoryId}/state", memory.SetMemoryState).Methods("POST")
	root.HandleFunc("/api/v1/memories/{memoryId}/history", memory.GetMemoryHistory).Methods("GET")
	root.HandleFunc("/api/v1/memories/{memoryId}/access-logs", memory.GetMemoryAccessLogs).Methods("GET")
	root.HandleFunc("/api/v1/memories/{memoryId}/categories", memory.GetMemoryCategories).Methods("GET")

	// Apps
	app := NewAppHandler(userSvc, appSvc, accessSvc, st.AccessRules())
	root.HandleFunc("/api/v1/users/{userId}/apps", app.ListApps).Methods("GET")
	root.HandleFunc("/api/v1/users/{userId}/bind-endpoint", app.BindEndpoint).Methods("POST")
	root.HandleFunc("/api/v1/apps/resolve", app.ResolveApp).Methods("POST")
	root.HandleFunc("/api/v1/apps/{appId}", app.GetApp).Methods("GET")
	root.HandleFunc("/api/v1/apps/{appId}", app.DeleteApp).Methods("DELETE")
	root.HandleFunc("/api/v1/apps/{appId}/active", app.SetAppActive).Methods("PUT")
	root.HandleFunc("/api/v1/apps/{appId}/name", app.RenameApp).Methods("PUT")
	root.HandleFunc("/api/v1/apps/{appId}/access-scope", app.GetAppAccessScope).Methods("GET")
	root.HandleFunc("/api/v1/access-rules", app.CreateAccessRule).Methods("POST")

	// Health
	health := NewHealthHandler(isHealthy)
	root.HandleFunc("/api/health", health.CheckHealth).Methods("GET")

	return root
}
