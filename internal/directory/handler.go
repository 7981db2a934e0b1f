package directory

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/permitflow/go-services/internal/authz"
	"github.com/permitflow/go-services/pkg/logger"
	"github.com/permitflow/go-services/pkg/middleware"
)

// RegisterDirectoryRoutes mounts the directory CRUD under the given group.
// Creates require the directory:manage capability; reads are open to any
// authenticated user.
func RegisterDirectoryRoutes(rg *gin.RouterGroup, repo Repository, auth authz.Authorizer) {
	d := rg.Group("/directory")

	d.POST("/customers", func(c *gin.Context) {
		if err := auth.Can(c.Request.Context(), middleware.Identity(c), authz.ActionManageDirectory); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		var in struct {
			Name  string `json:"name" binding:"required"`
			Email string `json:"email"`
			Phone string `json:"phone"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cust, err := repo.CreateCustomer(c.Request.Context(), &Customer{Name: in.Name, Email: in.Email, Phone: in.Phone})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, cust)
	})

	d.GET("/customers", func(c *gin.Context) {
		list, err := repo.ListCustomers(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"customers": list, "count": len(list)})
	})

	d.GET("/customers/:id", func(c *gin.Context) {
		cust, err := repo.GetCustomer(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cust)
	})

	d.POST("/counties", func(c *gin.Context) {
		if err := auth.Can(c.Request.Context(), middleware.Identity(c), authz.ActionManageDirectory); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		var in struct {
			Name        string `json:"name" binding:"required"`
			State       string `json:"state"`
			PortalURL   string `json:"portalUrl"`
			OfflineOnly bool   `json:"offlineOnly"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		co, err := repo.CreateCounty(c.Request.Context(), &County{
			Name: in.Name, State: in.State, PortalURL: in.PortalURL, OfflineOnly: in.OfflineOnly,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, co)
	})

	d.GET("/counties", func(c *gin.Context) {
		list, err := repo.ListCounties(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"counties": list, "count": len(list)})
	})

	d.GET("/counties/:id", func(c *gin.Context) {
		co, err := repo.GetCounty(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, co)
	})

	d.POST("/contractors", func(c *gin.Context) {
		if err := auth.Can(c.Request.Context(), middleware.Identity(c), authz.ActionManageDirectory); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		var in struct {
			Name          string `json:"name" binding:"required"`
			LicenseNumber string `json:"licenseNumber"`
			Email         string `json:"email"`
			Phone         string `json:"phone"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ct, err := repo.CreateContractor(c.Request.Context(), &Contractor{
			Name: in.Name, LicenseNumber: in.LicenseNumber, Email: in.Email, Phone: in.Phone,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ct)
	})

	d.GET("/contractors", func(c *gin.Context) {
		list, err := repo.ListContractors(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"contractors": list, "count": len(list)})
	})

	d.GET("/contractors/:id", func(c *gin.Context) {
		ct, err := repo.GetContractor(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ct)
	})
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	logger.Errorf("directory handler: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
}
