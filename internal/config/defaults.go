package config

import "time"

// Default returns the built-in configuration: a Cthulhu Dark game assistant with a
// router and three narrative handlers, stored in memory.
func Default() Config {
	return Config{
		LogLevel:    "info",
		LogFormat:   "text",
		StepTimeout: 60 * time.Second,
		Model: ModelConfig{
			Name:      "gemini-2.5-flash-lite",
			MaxTokens: 2048,
		},
		Router: RouterConfig{Name: "Router"},
		Handlers: []HandlerConfig{
			{
				Name:         "StoryTeller",
				Description:  "Agent to create Cthulhu Dark Stories",
				Instructions: "Eres un agente que narra historias de Cthulhu Dark",
			},
			{
				Name:         "StoryGuider",
				Description:  "Agent that helps the game master and the players to continue the story",
				Instructions: "Eres un agente que guía la historia de Cthulhu Dark, ayudando a los jugadores a tomar decisiones",
			},
			{
				Name:         "CharacterMaker",
				Description:  "Agent to help players create characters for Cthulhu Dark games",
				Instructions: "Eres un agente que ayuda a los jugadores a crear personajes para Cthulhu Dark",
			},
		},
		Server: ServerConfig{
			Addr:      ":8080",
			RateLimit: "5/minute",
		},
		Store: StoreConfig{
			Backend:   "memory",
			Path:      ".parley/sessions",
			RedisAddr: "localhost:6379",
		},
	}
}
