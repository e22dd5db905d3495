package authcore

import (
	"context"
	"testing"
)

func BenchmarkVerifyAccessToken(b *testing.B) {
	env := newTestEnv(b, nil)
	env.createUser(b, "bench@example.com", false)

	res, err := env.engine.Login(context.Background(), "bench@example.com", testPassword)
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.VerifyAccessToken(context.Background(), res.Tokens.AccessToken); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkRefreshAccessToken(b *testing.B) {
	env := newTestEnv(b, nil)
	p := env.createUser(b, "bench@example.com", false)

	res, err := env.engine.Login(context.Background(), "bench@example.com", testPassword)
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.RefreshAccessToken(context.Background(), p.ID, res.Tokens.RefreshToken); err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
	}
}

func BenchmarkLogin(b *testing.B) {
	env := newTestEnv(b, nil)
	env.createUser(b, "bench@example.com", false)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.Login(context.Background(), "bench@example.com", testPassword); err != nil {
			b.Fatalf("login failed: %v", err)
		}
	}
}

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricLoginSuccess)
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricLoginSuccess)
		}
	})
}
