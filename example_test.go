package cachejar_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/always-cache/cachejar"
	"github.com/always-cache/cachejar/cookie"
)

func ExampleTransport() {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=300")
		fmt.Fprintf(w, "Hello, %q", r.URL.Path)
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := cachejar.New(cachejar.Config{
		DefaultTTL: 5 * time.Minute,
		Jar:        cookie.NewJar(),
	}).Client()

	for i := 0; i < 2; i++ {
		res, err := client.Get(srv.URL + "/hello")
		if err != nil {
			panic(err)
		}
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		fmt.Println(string(body), res.Header.Get("Cache-Status") != "" && res.Header.Get("Age") != "")
	}
	// Output:
	// Hello, "/hello" false
	// Hello, "/hello" true
}
