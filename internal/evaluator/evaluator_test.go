package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/inantubek/rmnist/pkg/config"
	"github.com/inantubek/rmnist/pkg/models"
)

func TestScoreParser(t *testing.T) {
	tests := []struct {
		name    string
		parser  ScoreParser
		doc     string
		want    models.Score
		wantErr bool
	}{
		{"flat", ScoreParser{CorrectPath: "correct", LossPath: "loss"}, `{"correct": 9100, "loss": 0.25}`, models.Score{Correct: 9100, Loss: 0.25}, false},
		{"nested", ScoreParser{CorrectPath: "result.accuracy", LossPath: "result.val_loss"}, `{"result": {"accuracy": 9000, "val_loss": 0.4}}`, models.Score{Correct: 9000, Loss: 0.4}, false},
		{"loss optional", ScoreParser{CorrectPath: "correct"}, `{"correct": 42}`, models.Score{Correct: 42}, false},
		{"missing correct", ScoreParser{CorrectPath: "correct"}, `{"loss": 1}`, models.Score{}, true},
		{"missing loss", ScoreParser{CorrectPath: "correct", LossPath: "loss"}, `{"correct": 1}`, models.Score{}, true},
		{"string correct", ScoreParser{CorrectPath: "correct"}, `{"correct": "many"}`, models.Score{}, true},
		{"invalid json", ScoreParser{CorrectPath: "correct"}, `{"correct": `, models.Score{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.parser.Parse([]byte(tt.doc))
			if tt.wantErr {
				var invalid *InvalidResponseError
				if !errors.As(err, &invalid) {
					t.Fatalf("expected InvalidResponseError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFuncAdapter(t *testing.T) {
	var ev Evaluator = Func(func(ctx context.Context, cfg models.Configuration) (models.Score, error) {
		return models.Score{Correct: cfg.Kernels1}, nil
	})
	score, err := ev.Evaluate(context.Background(), models.DefaultConfiguration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Correct != 10 {
		t.Errorf("expected 10, got %d", score.Correct)
	}
}

func TestHTTPEvaluator(t *testing.T) {
	var got models.Configuration
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("expected configured header, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"metrics": {"correct": 9100, "loss": 0.3}}`))
	}))
	defer srv.Close()

	ev := NewHTTPEvaluator(srv.URL, ScoreParser{CorrectPath: "metrics.correct", LossPath: "metrics.loss"}).
		WithHeaders(map[string]string{"Authorization": "Bearer token"})

	cfg := models.DefaultConfiguration()
	score, err := ev.Evaluate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != (models.Score{Correct: 9100, Loss: 0.3}) {
		t.Errorf("unexpected score %+v", score)
	}
	if got != cfg {
		t.Errorf("server received %+v, want %+v", got, cfg)
	}
}

func TestHTTPEvaluatorStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ev := NewHTTPEvaluator(srv.URL, ScoreParser{CorrectPath: "correct"})
	_, err := ev.Evaluate(context.Background(), models.DefaultConfiguration())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "out of memory") {
		t.Errorf("expected status and body in error, got %v", err)
	}
}

func TestHTTPEvaluatorTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ev := NewHTTPEvaluator(srv.URL, ScoreParser{CorrectPath: "correct"}).WithTimeout(50 * time.Millisecond)
	_, err := ev.Evaluate(context.Background(), models.DefaultConfiguration())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestCommandEvaluatorArgs(t *testing.T) {
	ev := NewCommandEvaluator([]string{"python3", "train.py", "--expanded"}, ScoreParser{CorrectPath: "correct"})
	args := ev.Args(models.DefaultConfiguration())
	want := []string{"train.py", "--expanded",
		"--weight_decay", "0.001", "--lr", "0.01", "--nk1", "10", "--nk2", "20", "--ensemble_size", "5"}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Errorf("Args() = %v, want %v", args, want)
	}
}

func TestCommandEvaluator(t *testing.T) {
	// $6 is the value following --nk1.
	script := `echo "epoch 1"; echo '{"partial": true}'; echo "{\"correct\": $6, \"loss\": 0.5}"; echo done`
	ev := NewCommandEvaluator([]string{"sh", "-c", script, "train"}, ScoreParser{CorrectPath: "correct", LossPath: "loss"})

	cfg := models.DefaultConfiguration()
	cfg.Kernels1 = 12
	score, err := ev.Evaluate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != (models.Score{Correct: 12, Loss: 0.5}) {
		t.Errorf("unexpected score %+v", score)
	}
}

func TestCommandEvaluatorFailure(t *testing.T) {
	ev := NewCommandEvaluator([]string{"sh", "-c", "echo 'CUDA out of memory' >&2; exit 3"}, ScoreParser{CorrectPath: "correct"})
	_, err := ev.Evaluate(context.Background(), models.DefaultConfiguration())
	if err == nil {
		t.Fatal("expected error from failing command")
	}
	if !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestCommandEvaluatorNoJSON(t *testing.T) {
	ev := NewCommandEvaluator([]string{"sh", "-c", "echo finished"}, ScoreParser{CorrectPath: "correct"})
	_, err := ev.Evaluate(context.Background(), models.DefaultConfiguration())
	var invalid *InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidResponseError, got %v", err)
	}
}

func TestLastJSONLine(t *testing.T) {
	huge := strings.Repeat("x", 2<<20)
	tests := []struct {
		name   string
		out    string
		want   string
		wantOK bool
	}{
		{"single line", `{"correct": 1}`, `{"correct": 1}`, true},
		{"last of several", "{\"correct\": 1}\nlog\n{\"correct\": 2}\n", `{"correct": 2}`, true},
		{"trailing noise", "{\"correct\": 3}\ndone\n\n", `{"correct": 3}`, true},
		{"long line before result", "{\"correct\":1}\n" + huge + "\n{\"correct\":9000}\n", `{"correct":9000}`, true},
		{"long line after result", "{\"correct\":9000}\n" + huge + "\n", `{"correct":9000}`, true},
		{"invalid JSON skipped", "{\"correct\": 4}\n{broken\n", `{"correct": 4}`, true},
		{"no JSON", "epoch 1\nfinished\n", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, ok := lastJSONLine([]byte(tt.out))
			if ok != tt.wantOK || string(line) != tt.want {
				t.Errorf("lastJSONLine() = %q, %v; want %q, %v", line, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCommandEvaluatorLongOutputLine(t *testing.T) {
	// A progress bar printed as one enormous line must not hide the final result.
	script := `echo '{"correct": 1}'; head -c 2097152 /dev/zero | tr '\0' x; echo; echo '{"correct": 9000}'`
	ev := NewCommandEvaluator([]string{"sh", "-c", script}, ScoreParser{CorrectPath: "correct"})
	score, err := ev.Evaluate(context.Background(), models.DefaultConfiguration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Correct != 9000 {
		t.Errorf("expected the last result 9000, got %d", score.Correct)
	}
}

func TestTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(prev)

	fail := errors.New("diverged")
	calls := 0
	ev := Traced(Func(func(ctx context.Context, cfg models.Configuration) (models.Score, error) {
		calls++
		if calls == 2 {
			return models.Score{}, fail
		}
		return models.Score{Correct: 9000, Loss: 0.2}, nil
	}))

	if _, err := ev.Evaluate(context.Background(), models.DefaultConfiguration()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ev.Evaluate(context.Background(), models.DefaultConfiguration()); !errors.Is(err, fail) {
		t.Fatalf("expected wrapped evaluator error, got %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "evaluate" {
		t.Errorf("expected span name evaluate, got %s", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("expected ok status, got %v", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[1].Status().Code)
	}
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Evaluator
		wantErr bool
		check   func(t *testing.T, ev Evaluator)
	}{
		{
			name: "http",
			cfg:  config.Evaluator{Kind: "http", URL: "http://trainer:9000/train", CorrectPath: "correct", Timeout: "10m"},
			check: func(t *testing.T, ev Evaluator) {
				h, ok := ev.(*HTTPEvaluator)
				if !ok {
					t.Fatalf("expected *HTTPEvaluator, got %T", ev)
				}
				if h.timeout != 10*time.Minute {
					t.Errorf("expected 10m timeout, got %v", h.timeout)
				}
			},
		},
		{
			name: "command",
			cfg:  config.Evaluator{Kind: "command", Command: []string{"python3", "train.py"}, CorrectPath: "correct"},
			check: func(t *testing.T, ev Evaluator) {
				if _, ok := ev.(*CommandEvaluator); !ok {
					t.Fatalf("expected *CommandEvaluator, got %T", ev)
				}
			},
		},
		{
			name: "traced",
			cfg:  config.Evaluator{Kind: "command", Command: []string{"train"}, CorrectPath: "correct", Trace: true},
			check: func(t *testing.T, ev Evaluator) {
				if _, ok := ev.(*tracedEvaluator); !ok {
					t.Fatalf("expected traced evaluator, got %T", ev)
				}
			},
		},
		{name: "empty command", cfg: config.Evaluator{Kind: "command", CorrectPath: "correct"}, wantErr: true},
		{name: "bad timeout", cfg: config.Evaluator{Kind: "http", URL: "http://x", Timeout: "soon"}, wantErr: true},
		{name: "unknown kind", cfg: config.Evaluator{Kind: "grpc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := FromConfig(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, ev)
		})
	}
}
