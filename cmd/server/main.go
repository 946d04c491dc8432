package main

import (
	"github.com/aura-rover/aura-backend/internal/bootstrap"
)

func main() {
	bootstrap.Run()
}
