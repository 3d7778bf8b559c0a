package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropdoc/internal/provider"
	"cropdoc/internal/types"
)

func TestOpenMeteo_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "-1.2921", q.Get("latitude"))
		assert.Equal(t, "36.8219", q.Get("longitude"))
		assert.Contains(t, q.Get("current"), "temperature_2m")
		_, _ = w.Write([]byte(`{"current":{"time":"2024-06-01T12:00","temperature_2m":33.5,"relative_humidity_2m":82,"precipitation":0,"weather_code":2}}`))
	}))
	defer srv.Close()

	w, err := NewOpenMeteo(srv.URL, time.Second).Fetch(context.Background(), -1.2921, 36.8219)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 33.5, *w.TemperatureC)
	assert.Equal(t, 82.0, *w.HumidityPct)
	assert.Equal(t, "partly cloudy", w.Condition)
	assert.Equal(t, "hot", w.HeatLevel)
	assert.Equal(t, "humid", w.MoistureLevel)
	assert.Equal(t, "open-meteo", w.Source)
	require.NotNil(t, w.ObservedAt)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), *w.ObservedAt)
}

func TestOpenMeteo_EmptyCurrentIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	w, err := NewOpenMeteo(srv.URL, time.Second).Fetch(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestOpenMeteo_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenMeteo(srv.URL, time.Second).Fetch(context.Background(), 0, 0)
	var pe *provider.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
}

func TestLevels(t *testing.T) {
	assert.Equal(t, "cold", HeatLevel(4))
	assert.Equal(t, "mild", HeatLevel(18))
	assert.Equal(t, "warm", HeatLevel(28))
	assert.Equal(t, "hot", HeatLevel(32))

	assert.Equal(t, "wet", MoistureLevel(30, 1.2))
	assert.Equal(t, "dry", MoistureLevel(30, 0))
	assert.Equal(t, "moderate", MoistureLevel(55, 0))
	assert.Equal(t, "humid", MoistureLevel(90, 0))

	assert.Equal(t, "clear", Condition(0))
	assert.Equal(t, "rain", Condition(63))
	assert.Equal(t, "rain", Condition(81))
	assert.Equal(t, "snow", Condition(86))
	assert.Equal(t, "thunderstorm", Condition(95))
	assert.Equal(t, "wmo-20", Condition(20))
}

type countingProvider struct {
	mu    sync.Mutex
	calls int
	snap  *types.WeatherSnapshot
	err   error
}

func (p *countingProvider) Fetch(ctx context.Context, lat, lon float64) (*types.WeatherSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.snap, p.err
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
}

func (m *mapCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("connection refused")
	}
	b, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (m *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("connection refused")
	}
	m.data[key] = value
	return nil
}

func temp(v float64) *float64 { return &v }

func TestCached_LocalHit(t *testing.T) {
	p := &countingProvider{snap: &types.WeatherSnapshot{TemperatureC: temp(21), Source: "test"}}
	c := NewCached(p, 8, time.Minute, nil, nil)

	a, err := c.Fetch(context.Background(), 10.001, 20.002)
	require.NoError(t, err)
	b, err := c.Fetch(context.Background(), 10.004, 20.003)
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls)
	assert.Equal(t, *a.TemperatureC, *b.TemperatureC)

	_, _ = c.Fetch(context.Background(), 11, 20)
	assert.Equal(t, 2, p.calls)
}

func TestCached_RemoteSharedAcrossInstances(t *testing.T) {
	remote := &mapCache{data: map[string][]byte{}}
	p := &countingProvider{snap: &types.WeatherSnapshot{Condition: "rain", Source: "test"}}

	first := NewCached(p, 8, time.Minute, remote, nil)
	_, err := first.Fetch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Contains(t, remote.data, cacheKey(1, 2))

	second := NewCached(p, 8, time.Minute, remote, nil)
	w, err := second.Fetch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "rain", w.Condition)
	assert.Equal(t, 1, p.calls)
}

func TestCached_RemoteFailureDegrades(t *testing.T) {
	remote := &mapCache{data: map[string][]byte{}, fail: true}
	p := &countingProvider{snap: &types.WeatherSnapshot{Condition: "clear"}}
	c := NewCached(p, 8, time.Minute, remote, nil)
	w, err := c.Fetch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "clear", w.Condition)
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	p := &countingProvider{err: errors.New("timeout")}
	c := NewCached(p, 8, time.Minute, nil, nil)
	_, err := c.Fetch(context.Background(), 1, 2)
	require.Error(t, err)
	_, err = c.Fetch(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Equal(t, 2, p.calls)
}
