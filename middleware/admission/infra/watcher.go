package infra

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"admission-gateway/middleware/admission/domain"
)

// Watcher observa o arquivo de policies e dispara reloads no ConfigStore.
//
// A detecção é edge-triggered com debounce: uma rajada de escritas vira
// um único ciclo de validação e apply, limitando o churn de reload.
//
// Observação: o watch é no DIRETÓRIO do arquivo (alguns sistemas não
// suportam observar o arquivo direto, e editores costumam trocar o
// arquivo via rename — que é também como o próprio Write da FileSource
// persiste).
type Watcher struct {
	path     string
	store    *ConfigStore
	debounce time.Duration
	onReload func(domain.ReloadResult)
}

type WatcherOption func(*Watcher)

// WithDebounce define a janela de coalescência de eventos (padrão 250ms).
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithOnReload registra um callback best-effort chamado a cada reload
// disparado pelo watcher (para logs/métricas; pode ser nil).
func WithOnReload(fn func(domain.ReloadResult)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

func NewWatcher(path string, store *ConfigStore, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	w := &Watcher{
		path:     absPath,
		store:    store,
		debounce: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start cria o watcher e fica observando até o contexto encerrar.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	go w.loop(ctx, fsw, file)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, file string) {
	defer fsw.Close()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != file {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// debounce: cada evento novo reinicia o timer; só o último
			// da rajada dispara o apply
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				res := w.store.Reload(ctx)
				if w.onReload != nil {
					w.onReload(res)
				}
			})

		case _, ok := <-fsw.Errors:
			if !ok {
				return
			}
			// erro do watcher não derruba nada: o snapshot corrente
			// continua servindo e um reload manual segue possível
		}
	}
}
