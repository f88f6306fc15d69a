package main

import (
	"fmt"

	_ "github.com/agentuity/edgecache/bus"
	_ "github.com/agentuity/edgecache/cache"
	_ "github.com/agentuity/edgecache/depgraph"
	_ "github.com/agentuity/edgecache/fragment"
	_ "github.com/agentuity/edgecache/provider"
	_ "github.com/agentuity/edgecache/resilience"
)

func main() {
	fmt.Println("Hi")
}
