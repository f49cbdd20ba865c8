package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "tutors", cfg.Snapshot.TutorsCollection)
	assert.Equal(t, "users", cfg.Snapshot.StudentsCollection)
	assert.Equal(t, "respuestas_cuestionarios", cfg.Snapshot.ResponsesCollection)
	assert.Equal(t, "recomendaciones", cfg.Snapshot.RecommendationsCollection)
	assert.True(t, cfg.Snapshot.AutoReload)
	assert.Equal(t, 8, cfg.Snapshot.RecommendationConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Snapshot.RemoteTimeout)
	assert.Zero(t, cfg.Snapshot.ReloadInterval)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("SNAPSHOT_AUTO_RELOAD", false)
	v.Set("SNAPSHOT_RECOMMENDATION_CONCURRENCY", 0)
	v.Set("REMOTE_TIMEOUT", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", " http://a.test , ,http://b.test")

	cfg := fromViper(v)
	assert.False(t, cfg.Snapshot.AutoReload)
	assert.Equal(t, 8, cfg.Snapshot.RecommendationConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Snapshot.RemoteTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}
