package service

import (
	"context"
	"strings"

	"github.com/fjod/go_cart/fulfillment-service/internal/cache"
	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
	"github.com/fjod/go_cart/fulfillment-service/internal/repository"
	"golang.org/x/sync/singleflight"
)

// sourced is what a singleflight call shares between waiters.
type sourced[T any] struct {
	value  T
	source domain.Source
}

type CatalogService struct {
	repo  repository.ProductRepository
	cache cache.Cache
	sfg   singleflight.Group // Prevents cache stampede
}

func NewCatalogService(repo repository.ProductRepository, c cache.Cache) *CatalogService {
	return &CatalogService{
		repo:  repo,
		cache: c,
	}
}

func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, domain.Source, error) {
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Search = cache.NormalizeSearch(filter.Search)
	key := cache.ProductListKey(filter.Category, filter.Search)

	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		var products []*domain.Product
		if s.cache.Get(ctx, key, &products) {
			return sourced[[]*domain.Product]{products, domain.SourceCache}, nil
		}

		products, err := s.repo.ListProducts(ctx, filter)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, key, products)
		return sourced[[]*domain.Product]{products, domain.SourceDatabase}, nil
	})
	if err != nil {
		return nil, "", err
	}

	res := v.(sourced[[]*domain.Product])
	return res.value, res.source, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, domain.Source, error) {
	key := cache.ProductKey(id)

	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		var product domain.Product
		if s.cache.Get(ctx, key, &product) {
			return sourced[*domain.Product]{&product, domain.SourceCache}, nil
		}

		// not-found is not cached
		p, err := s.repo.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, key, p)
		return sourced[*domain.Product]{p, domain.SourceDatabase}, nil
	})
	if err != nil {
		return nil, "", err
	}

	res := v.(sourced[*domain.Product])
	cp := *res.value
	return &cp, res.source, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]string, domain.Source, error) {
	v, err, _ := s.sfg.Do(cache.CategoriesKey, func() (interface{}, error) {
		var categories []string
		if s.cache.Get(ctx, cache.CategoriesKey, &categories) {
			return sourced[[]string]{categories, domain.SourceCache}, nil
		}

		categories, err := s.repo.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, cache.CategoriesKey, categories)
		return sourced[[]string]{categories, domain.SourceDatabase}, nil
	})
	if err != nil {
		return nil, "", err
	}

	res := v.(sourced[[]string])
	return res.value, res.source, nil
}
