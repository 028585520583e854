package viz

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
)

// viewTimeout is how long a bucket keeps rendering after its last request.
const viewTimeout = time.Second

type Producer interface {
	Name() string
	GetImage() *ImageContainer
}

// Server re-renders the producers of recently viewed buckets on an interval
// and serves the latest PNGs.
type Server struct {
	mu              sync.RWMutex
	images          map[string]map[string]*ImageContainer
	producerBuckets map[string]map[string]Producer
	lastViewed      map[string]time.Time
	updateInterval  time.Duration
	enabled         bool
	srv             *http.Server
}

func NewServer(port int, updateInterval time.Duration) *Server {
	s := &Server{
		images:          make(map[string]map[string]*ImageContainer),
		producerBuckets: make(map[string]map[string]Producer),
		lastViewed:      make(map[string]time.Time),
		updateInterval:  updateInterval,
		enabled:         true,
	}
	s.srv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: s.Handler()}
	return s
}

func (s *Server) Enable(enable bool) {
	s.mu.Lock()
	s.enabled = enable
	s.mu.Unlock()
}

func (s *Server) Register(bucket string, p Producer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.producerBuckets[bucket]
	if !ok {
		b = make(map[string]Producer)
		s.producerBuckets[bucket] = b
	}
	b[p.Name()] = p
}

func (s *Server) buckets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.producerBuckets))
	for key := range s.producerBuckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// refreshBucket renders every producer of bucket and stores the images.
func (s *Server) refreshBucket(bucket string) {
	s.mu.RLock()
	producers := make([]Producer, 0, len(s.producerBuckets[bucket]))
	for _, p := range s.producerBuckets[bucket] {
		producers = append(producers, p)
	}
	s.mu.RUnlock()

	rendered := make([]*ImageContainer, len(producers))
	var wg sync.WaitGroup
	for i, p := range producers {
		wg.Add(1)
		go func(i int, p Producer) {
			defer wg.Done()
			rendered[i] = p.GetImage()
		}(i, p)
	}
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	mb, ok := s.images[bucket]
	if !ok {
		mb = make(map[string]*ImageContainer)
		s.images[bucket] = mb
	}
	for i, img := range rendered {
		if img != nil {
			mb[producers[i].Name()] = img
		}
	}
}

func (s *Server) refresh(now time.Time) {
	s.mu.RLock()
	enabled := s.enabled
	var viewed []string
	for bucket, t := range s.lastViewed {
		if now.Sub(t) < viewTimeout {
			viewed = append(viewed, bucket)
		}
	}
	s.mu.RUnlock()

	if !enabled {
		return
	}
	for _, bucket := range viewed {
		s.refreshBucket(bucket)
	}
}

func (s *Server) touch(bucket string) {
	s.mu.Lock()
	s.lastViewed[bucket] = time.Now()
	s.mu.Unlock()
}

func (s *Server) Handler() http.Handler {
	handler := httprouter.New()

	handler.GET("/", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		keys := s.buckets()
		if len(keys) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Location", "/view/"+url.PathEscape(keys[0]))
		w.WriteHeader(http.StatusFound)
	})

	handler.GET("/view/:bucket", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		bucket := params.ByName("bucket")

		s.mu.RLock()
		items, ok := s.producerBuckets[bucket]
		names := make([]string, 0, len(items))
		for name := range items {
			names = append(names, name)
		}
		interval := s.updateInterval
		s.mu.RUnlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		sort.Strings(names)

		s.touch(bucket)
		s.refreshBucket(bucket)

		var b strings.Builder
		b.WriteString(`<html><head><title>tonewire</title></head>`)
		fmt.Fprintf(&b, `
		<script type="text/javascript">
			var toggleRefresh = true;
			function toggleOn() {
				toggleRefresh = !toggleRefresh;
			}

			function changeBucket() {
				var val = document.getElementById('bucketSelector').value;
				window.location.href = '/view/' + val;
			}
			window.onload = function() {
				for (var i = 0; i < %d; i++) {
					var img = document.getElementById('graph-' + i);
					setInterval(function(image) {
						if (toggleRefresh) {
							image.src = image.src.split("?")[0] + "?" + new Date().getTime();
						}
					}, %d, img);
				}
			}
		</script>`, len(names), interval.Milliseconds())
		b.WriteString(`<body style='background-color: black'>`)

		b.WriteString(`<select id="bucketSelector" onchange="changeBucket()">`)
		for _, key := range s.buckets() {
			selected := ""
			if key == bucket {
				selected = " selected"
			}
			fmt.Fprintf(&b, `<option value="%s"%s>%s</option>`, html.EscapeString(key), selected, html.EscapeString(key))
		}
		b.WriteString(`</select>`)
		b.WriteString(`<button onclick="toggleOn()">Refresh?</button>`)

		b.WriteString(`<div style="display: flex; flex-direction: row; flex-wrap: wrap">`)
		for idx, name := range names {
			fmt.Fprintf(&b, `<div><img id="graph-%d" src="/img/%s/%s?%d" /></div>`,
				idx, url.PathEscape(bucket), url.PathEscape(name), time.Now().UnixMicro())
		}
		b.WriteString(`</div></body></html>`)

		w.Header().Add("Content-Type", "text/html")
		w.Write([]byte(b.String()))
	})

	handler.GET("/img/:bucket/:img", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		bucket := params.ByName("bucket")
		s.touch(bucket)

		s.mu.RLock()
		img, ok := s.images[bucket][params.ByName("img")]
		s.mu.RUnlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Add("Content-Type", "image/png")
		w.Write(img.data)
	})

	return handler
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Run serves until ctx is done or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(s.updateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.refresh(now)
			}
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
