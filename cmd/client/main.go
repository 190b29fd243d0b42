// Command client uploads views of an object to a running server and saves
// the reconstructed mesh.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

func main() {
	server := flag.String("server", "http://127.0.0.1:8080", "Server base URL")
	output := flag.String("output", "model.glb", "Where to write the returned mesh")
	save := flag.Bool("save", false, "Ask the server to keep the mesh")
	filename := flag.String("filename", "", "Name to store the mesh under")
	timeout := flag.Duration("timeout", 2*time.Minute, "Request timeout")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage:", os.Args[0], "[flags] <image> [image...]")
		flag.PrintDefaults()
		os.Exit(1)
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
	}

	client := resty.New().SetBaseURL(*server).SetTimeout(*timeout)
	req := client.R()
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatal("[Client] Couldn't read image: ", err.Error())
		}
		req.SetFileReader("images[]", filepath.Base(path), bytes.NewReader(data))
	}
	req.SetFormData(map[string]string{
		"save":     fmt.Sprint(*save),
		"filename": *filename,
	})

	resp, err := req.Post("/upload")
	if err != nil {
		log.Fatal("[Client] Upload failed: ", err.Error())
	}
	if resp.StatusCode() != 200 {
		log.Fatalf("[Client] Server answered %d: %s", resp.StatusCode(), resp.String())
	}
	if err := os.WriteFile(*output, resp.Body(), 0644); err != nil {
		log.Fatal("[Client] Couldn't write mesh: ", err.Error())
	}

	fields := log.Fields{
		"output":    *output,
		"bytes":     len(resp.Body()),
		"triangles": resp.Header().Get("X-Triangle-Count"),
	}
	if id := resp.Header().Get("X-Model-ID"); id != "" {
		fields["id"] = id
	}
	log.WithFields(fields).Info("[Client] Saved mesh")
}
