// Package cache provides a namespaced read-through cache over pkg/cache backends.
package cache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	pkgcache "BazaarPull/pkg/cache"
	applogger "BazaarPull/pkg/logger"
)

// ReadThrough stores computed values under "<namespace>:..." keys.
// Backend failures degrade to computing on every call.
type ReadThrough struct {
	svc       pkgcache.Service
	namespace string
	ttl       time.Duration
	l         *applogger.Logger
}

func NewReadThrough(svc pkgcache.Service, namespace string, ttl time.Duration, l *applogger.Logger) *ReadThrough {
	if l == nil {
		l = applogger.Nop()
	}
	return &ReadThrough{
		svc:       svc,
		namespace: namespace,
		ttl:       ttl,
		l:         l.With(applogger.String("cache", namespace)),
	}
}

// Key builds a key inside the namespace.
func (c *ReadThrough) Key(parts ...interface{}) string {
	return pkgcache.GenerateKey(c.namespace, parts...)
}

// GetOrCompute decodes a cached value into dest, or calls compute, stores its
// result and assigns it to dest. dest must be a pointer to the type compute returns.
// A ttl of 0 uses the default.
func (c *ReadThrough) GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest interface{}, compute func(context.Context) (interface{}, error)) (hit bool, err error) {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false, fmt.Errorf("cache %s: dest must be a non-nil pointer", key)
	}

	err = c.svc.Get(ctx, key, dest)
	switch {
	case err == nil:
		return true, nil
	case !errors.Is(err, pkgcache.ErrCacheMiss):
		c.l.Warn("cache read failed", applogger.String("key", key), applogger.Error(err))
	}

	v, err := compute(ctx)
	if err != nil {
		return false, err
	}
	vv := reflect.ValueOf(v)
	if !vv.IsValid() || !vv.Type().AssignableTo(rv.Elem().Type()) {
		return false, fmt.Errorf("cache %s: computed %T not assignable to %s", key, v, rv.Elem().Type())
	}
	rv.Elem().Set(vv)

	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.svc.Set(ctx, key, v, ttl); err != nil {
		c.l.Warn("cache write failed", applogger.String("key", key), applogger.Error(err))
	}
	return false, nil
}

// InvalidateAll drops every key of the namespace.
func (c *ReadThrough) InvalidateAll(ctx context.Context) error {
	if err := c.svc.DeleteByPattern(ctx, pkgcache.BuildPattern(c.namespace+":")); err != nil {
		return fmt.Errorf("invalidate %s: %w", c.namespace, err)
	}
	c.l.Debug("cache invalidated")
	return nil
}
