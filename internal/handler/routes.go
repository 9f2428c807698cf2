package handler

import (
	"github.com/cloud-wave-best-zizon/stock-order-service/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// Register mounts the authenticated API under rg.
func Register(rg *gin.RouterGroup, identity middleware.Identity, orders *OrderHandler, catalog *CatalogHandler) {
	api := rg.Group("", middleware.RequireUser(identity))
	{
		api.POST("/items", catalog.CreateItem)
		api.GET("/items", catalog.ListItems)
		api.GET("/items/:id", catalog.GetItem)
		api.PATCH("/items/:id", catalog.UpdateItem)
		api.DELETE("/items/:id", catalog.DeleteItem)
		api.POST("/items/:id/stock", catalog.AdjustStock)

		api.POST("/customers", catalog.CreateCustomer)
		api.GET("/customers", catalog.ListCustomers)
		api.GET("/customers/:id", catalog.GetCustomer)
		api.PATCH("/customers/:id", catalog.UpdateCustomer)
		api.DELETE("/customers/:id", catalog.DeleteCustomer)

		api.POST("/orders", orders.CreateOrder)
		api.GET("/orders", orders.ListOrders)
		api.GET("/orders/:id", orders.GetOrder)
		api.PATCH("/orders/:id", orders.UpdateOrder)
		api.DELETE("/orders/:id", orders.DeleteOrder)
		api.PUT("/orders/:id/status", orders.SetStatus)
		api.GET("/orders/:id/history", orders.GetOrderHistory)
	}
}
