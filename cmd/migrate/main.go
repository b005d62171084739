package main

import (
	"log"

	"veilchat/config"
	"veilchat/internal/domain/chat"
	"veilchat/internal/domain/keys"
	"veilchat/internal/domain/user"
	"veilchat/pkg/database"
)

func main() {
	cfg := config.LoadConfig()
	database.Connect(cfg)

	if err := database.DB.AutoMigrate(
		&user.User{},
		&user.Session{},
		&keys.Device{},
		&keys.OneTimePreKey{},
		&chat.Room{},
		&chat.RoomMember{},
		&chat.Connection{},
		&chat.Message{},
		&chat.WrappedKey{},
		&chat.MessageSeen{},
	); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	log.Println("Migrations applied")
}
