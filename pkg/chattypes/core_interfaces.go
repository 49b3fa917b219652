package chattypes

// Service defines the interface for akashchat services.
// Services are registered by name and initialized once at startup.
type Service interface {
	Name() string
	Initialize() error
}
