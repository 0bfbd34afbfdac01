/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controllers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/kau-subtrack/subtrack-backend/pkg/errors"
)

const driverIDKey = "driverID"

// Authenticate validates the bearer token and stores the driver id on the
// request context. Tokens carry the driver id in the userId claim; older
// tokens use user_id.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortWithError(c, apierrors.Unauthenticated("missing authorization header"))
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			abortWithError(c, apierrors.Unauthenticated("authorization header is not a bearer token"))
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
			}
			return secret, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortWithError(c, apierrors.Unauthenticated("token expired"))
				return
			}
			abortWithError(c, apierrors.Unauthenticated("invalid token"))
			return
		}

		driverID, ok := driverIDFromClaims(claims)
		if !ok {
			abortWithError(c, apierrors.Unauthenticated("token carries no driver id"))
			return
		}
		c.Set(driverIDKey, driverID)
		c.Next()
	}
}

func driverIDFromClaims(claims jwt.MapClaims) (int64, bool) {
	for _, key := range []string{"userId", "user_id"} {
		if raw, ok := claims[key]; ok {
			if id, ok := raw.(float64); ok {
				return int64(id), true
			}
		}
	}
	return 0, false
}

// driverID reads the authenticated driver id set by Authenticate.
func driverID(c *gin.Context) int64 {
	return c.GetInt64(driverIDKey)
}
