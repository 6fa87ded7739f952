package main

import (
	"flag"
	"log"

	"BackpropDev/pkg/server"
)

func main() {
	port := flag.String("port", "8080", "HTTP 监听端口")
	flag.Parse()

	hs := server.NewHTTPServer(*port, server.NewManager())
	if err := hs.Start(); err != nil {
		log.Fatalf("训练服务退出: %v", err)
	}
}
