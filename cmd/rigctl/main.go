package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/goccy/go-json"
)

var addr = flag.String("addr", "http://127.0.0.1:9999", "camrig api address")

func usage() {
	fmt.Fprintln(os.Stderr, `usage: rigctl [-addr url] <command> [args]

commands:
  status                      all device statuses
  record start [folder]       start recording on every device
  record stop                 stop all recordings
  stills [base] [format]      save one still per device
  recordings <folder>         list the files of one take
  system                      host cpu/memory/disk`)
	os.Exit(2)
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	switch args[0] {
	case "status":
		get("/api/status")
	case "record":
		if len(args) < 2 {
			usage()
		}
		switch args[1] {
		case "start":
			body := map[string]string{}
			if len(args) > 2 {
				body["folder"] = args[2]
			}
			post("/api/recording/start", body)
		case "stop":
			post("/api/recording/stop", nil)
		default:
			usage()
		}
	case "stills":
		body := map[string]string{}
		if len(args) > 1 {
			body["base"] = args[1]
		}
		if len(args) > 2 {
			body["format"] = args[2]
		}
		post("/api/stills", body)
	case "recordings":
		if len(args) < 2 {
			usage()
		}
		get("/api/recordings/" + args[1])
	case "system":
		get("/api/system")
	default:
		usage()
	}
}

func get(path string) {
	resp, err := http.Get(*addr + path)
	if err != nil {
		log.Fatalln(err)
	}
	show(resp)
}

func post(path string, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Fatalln(err)
	}
	resp, err := http.Post(*addr+path, "application/json", bytes.NewReader(data))
	if err != nil {
		log.Fatalln(err)
	}
	show(resp)
}

func show(resp *http.Response) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalln(err)
	}

	var out bytes.Buffer
	if json.Indent(&out, data, "", "  ") == nil {
		data = out.Bytes()
	}
	fmt.Printf("%s %s\n", resp.Status, data)
}
