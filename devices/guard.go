package devices

import (
	"fmt"

	"github.com/mobile-next/devicebridge/utils"
	"github.com/sirupsen/logrus"
)

// guard runs one adapter capability. A panic inside fn is recovered and
// returned as an error, and any failure is logged with the method name.
func guard(identity Identity, method string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", method, r)
		}
		if err != nil {
			utils.Logger().WithFields(logrus.Fields{
				"device": identity.ID,
				"kind":   identity.Kind,
				"method": method,
			}).Errorf("%s failed: %v", method, err)
		}
	}()
	return fn()
}

// guardValue is guard for capabilities that return a value.
func guardValue[T any](identity Identity, method string, fn func() (T, error)) (T, error) {
	var out T
	err := guard(identity, method, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
