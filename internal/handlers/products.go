package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
	"storefront/internal/repository"
)

type productRequest struct {
	Name        string `json:"name" binding:"required"`
	SKU         string `json:"sku"`
	Price       string `json:"price" binding:"required"`
	Description string `json:"description"`
	Brand       string `json:"brand"`
	ImagePath   string `json:"imagePath"`
	Stock       int    `json:"stock"`
	IsActive    *bool  `json:"isActive"`
}

type productUpdateRequest struct {
	Name        *string `json:"name"`
	Price       *string `json:"price"`
	SaleEnabled *bool   `json:"saleEnabled"`
	SalePrice   *string `json:"salePrice"`
	Description *string `json:"description"`
	Brand       *string `json:"brand"`
	Stock       *int    `json:"stock"`
	IsActive    *bool   `json:"isActive"`
}

func GetProducts(products *repository.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /products"
		defer handlePanic(c, route)

		page, limit := int64(0), int64(0)
		if c.Query("page") != "" && c.Query("limit") != "" {
			var err error
			page, limit, err = parsePaginationParams(c.Query("page"), c.Query("limit"))
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid pagination params")
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		result, err := products.List(ctx, page, limit)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func GetProductByID(products *repository.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /products/:id"
		defer handlePanic(c, route)

		productID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		product, err := products.GetProduct(ctx, productID)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, product)
	}
}

func CreateProduct(products *repository.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/products"
		defer handlePanic(c, route)

		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		price, err := models.MoneyFromString(req.Price)
		if err != nil || price.IsNegative() {
			respondWithError(c, http.StatusBadRequest, route, "invalid price")
			return
		}
		if req.Stock < 0 {
			respondWithError(c, http.StatusBadRequest, route, "stock must not be negative")
			return
		}

		isActive := true
		if req.IsActive != nil {
			isActive = *req.IsActive
		}

		product := models.Product{
			Name:        strings.TrimSpace(req.Name),
			SKU:         strings.TrimSpace(req.SKU),
			Price:       price,
			SalePrice:   models.ZeroMoney(),
			Description: strings.TrimSpace(req.Description),
			Brand:       strings.TrimSpace(req.Brand),
			ImagePath:   strings.TrimSpace(req.ImagePath),
			Stock:       req.Stock,
			IsActive:    isActive,
			CreatedAt:   time.Now(),
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := products.Insert(ctx, &product); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusConflict, route, "sku already exists")
				return
			}
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusCreated, product)
	}
}

func UpdateProduct(products *repository.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/api/products/:id"
		defer handlePanic(c, route)

		productID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		var req productUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		set := bson.M{}
		if req.Name != nil {
			set["name"] = strings.TrimSpace(*req.Name)
		}
		if req.Price != nil {
			price, err := models.MoneyFromString(*req.Price)
			if err != nil || price.IsNegative() {
				respondWithError(c, http.StatusBadRequest, route, "invalid price")
				return
			}
			set["price"] = price
		}
		if req.SaleEnabled != nil {
			set["saleEnabled"] = *req.SaleEnabled
		}
		if req.SalePrice != nil {
			salePrice, err := models.MoneyFromString(*req.SalePrice)
			if err != nil || salePrice.IsNegative() {
				respondWithError(c, http.StatusBadRequest, route, "invalid sale price")
				return
			}
			set["salePrice"] = salePrice
		}
		if req.Description != nil {
			set["description"] = strings.TrimSpace(*req.Description)
		}
		if req.Brand != nil {
			set["brand"] = strings.TrimSpace(*req.Brand)
		}
		if req.Stock != nil {
			if *req.Stock < 0 {
				respondWithError(c, http.StatusBadRequest, route, "stock must not be negative")
				return
			}
			set["stock"] = *req.Stock
		}
		if req.IsActive != nil {
			set["isActive"] = *req.IsActive
		}
		if len(set) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := products.Update(ctx, productID, set); err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "product updated"})
	}
}

func DeleteProduct(products *repository.ProductStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /admin/api/products/:id"
		defer handlePanic(c, route)

		productID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := products.Delete(ctx, productID); err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
	}
}
