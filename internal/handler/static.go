package handler

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SPAHandler はdir配下の静的ファイルを配信する。
// 存在しないパスにはindex.htmlを返し、クライアント側ルーティングに任せる。
func SPAHandler(dir string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// APIの未定義パスはSPAにフォールバックさせない
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}

		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		info, err := os.Stat(name)
		if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir() && r.URL.Path != "/") {
			http.ServeFile(w, r, index)
			return
		}

		fileServer.ServeHTTP(w, r)
	})
}
