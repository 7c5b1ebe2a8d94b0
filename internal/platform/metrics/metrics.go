package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
)

type Opts struct {
	Name string
	Help string
}

type collector interface {
	name() string
	writePrometheus(*strings.Builder)
}

type Registry struct {
	mu         sync.RWMutex
	collectors map[string]collector
}

func NewRegistry() *Registry {
	return &Registry{
		collectors: map[string]collector{},
	}
}

func (r *Registry) MustRegister(items ...collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		name := item.name()
		if _, exists := r.collectors[name]; exists {
			panic("metrics collector already registered: " + name)
		}
		r.collectors[name] = item
	}
}

func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		var sb strings.Builder

		r.mu.RLock()
		names := make([]string, 0, len(r.collectors))
		for name := range r.collectors {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			r.collectors[name].writePrometheus(&sb)
		}
		r.mu.RUnlock()

		_, _ = w.Write([]byte(sb.String()))
	})
}

func writeMetricHead(sb *strings.Builder, name, kind, help string) {
	if help != "" {
		fmt.Fprintf(sb, "# HELP %s %s\n", name, help)
	}
	fmt.Fprintf(sb, "# TYPE %s %s\n", name, kind)
}

func floatToString(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

type Counter struct {
	parent      *CounterVec
	labelValues []string

	mu    sync.Mutex
	value float64
	opts  Opts
	plain bool
}

func NewCounter(opts Opts) *Counter {
	return &Counter{opts: opts, plain: true}
}

func (c *Counter) Inc() {
	c.Add(1)
}

func (c *Counter) Add(delta float64) {
	if c.parent != nil {
		c.parent.add(c.labelValues, delta)
		return
	}
	c.mu.Lock()
	c.value += delta
	c.mu.Unlock()
}

func (c *Counter) name() string {
	return c.opts.Name
}

func (c *Counter) writePrometheus(sb *strings.Builder) {
	writeMetricHead(sb, c.opts.Name, "counter", c.opts.Help)
	c.mu.Lock()
	v := c.value
	c.mu.Unlock()
	fmt.Fprintf(sb, "%s %s\n", c.opts.Name, floatToString(v))
}

type CounterVec struct {
	opts       Opts
	labelNames []string

	mu     sync.RWMutex
	values map[string]float64
}

func NewCounterVec(opts Opts, labelNames []string) *CounterVec {
	copied := make([]string, len(labelNames))
	copy(copied, labelNames)
	return &CounterVec{
		opts:       opts,
		labelNames: copied,
		values:     map[string]float64{},
	}
}

func (c *CounterVec) name() string {
	return c.opts.Name
}

func (c *CounterVec) WithLabelValues(values ...string) *Counter {
	return &Counter{parent: c, labelValues: values}
}

func (c *CounterVec) add(labelValues []string, delta float64) {
	if len(labelValues) != len(c.labelNames) {
		return
	}
	key := strings.Join(labelValues, "\xff")
	c.mu.Lock()
	c.values[key] += delta
	c.mu.Unlock()
}

func (c *CounterVec) writePrometheus(sb *strings.Builder) {
	writeMetricHead(sb, c.opts.Name, "counter", c.opts.Help)

	c.mu.RLock()
	keys := make([]string, 0, len(c.values))
	for key := range c.values {
		keys = append(keys, key)
	}
	c.mu.RUnlock()
	sort.Strings(keys)

	for _, key := range keys {
		c.mu.RLock()
		value := c.values[key]
		c.mu.RUnlock()

		labelValues := strings.Split(key, "\xff")
		sb.WriteString(c.opts.Name)
		sb.WriteString("{")
		for idx, labelName := range c.labelNames {
			if idx > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(labelName)
			sb.WriteString(`="`)
			if idx < len(labelValues) {
				sb.WriteString(labelValues[idx])
			}
			sb.WriteString(`"`)
		}
		sb.WriteString("} ")
		sb.WriteString(floatToString(value))
		sb.WriteString("\n")
	}
}
