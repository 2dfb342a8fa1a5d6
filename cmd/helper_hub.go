package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/syepes/hubitat-exporter/pkg/hub"
)

func hubFlags(f *pflag.FlagSet) {
	// -h stays cobra's help shorthand.
	f.String(
		"hubitat-ip",
		"",
		"address of the hub. An IP, `host:port` or URL is accepted; only `http` and `https` schemes are supported.")
	f.StringP(
		"hubitat-api-id",
		"i",
		"",
		"app id of the Maker API instance publishing the devices")
	f.StringP(
		"hubitat-api-access-token",
		"t",
		"",
		"access token of the Maker API instance")
	f.BoolP(
		"hubitat-device-details",
		"d",
		true,
		"if true, fetch the hub's device inventory and label metrics with hub, location, network id and driver")
	f.StringP(
		"hubitat-auth-usr",
		"u",
		"",
		"username for the hub's login form, if hub security is enabled")
	f.StringP(
		"hubitat-auth-pwd",
		"p",
		"",
		"password for the hub's login form; requires --hubitat-auth-usr")
	f.Bool(
		"hubitat-insecure-tls",
		true,
		"if true, the certificate of an `https` hub address is not verified. Hubs serve a self-signed certificate.")

	bindEnv(map[string]string{
		"hubitat-ip":               "HE_IP",
		"hubitat-api-id":           "HE_API_ID",
		"hubitat-api-access-token": "HE_API_TOKEN",
		"hubitat-device-details":   "HE_DD",
		"hubitat-auth-usr":         "HE_AUTH_USR",
		"hubitat-auth-pwd":         "HE_AUTH_PWD",
		"hubitat-insecure-tls":     "HE_INSECURE_TLS",
	})
}

func hubClientFromFlags() (*hub.Client, error) {
	var missing []error
	for _, name := range []string{"hubitat-ip", "hubitat-api-id", "hubitat-api-access-token"} {
		if viper.GetString(name) == "" {
			missing = append(missing, fmt.Errorf("--%s is required", name))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	c, err := hub.NewClient(
		viper.GetString("hubitat-ip"),
		hub.WithMakerAPI(viper.GetString("hubitat-api-id"), viper.GetString("hubitat-api-access-token")),
		hub.WithCredentials(viper.GetString("hubitat-auth-usr"), viper.GetString("hubitat-auth-pwd")),
		hub.WithInsecureTLS(viper.GetBool("hubitat-insecure-tls")),
		hub.WithUserAgent(hub.DefaultUserAgent+"/"+version),
	)
	if err != nil {
		return nil, fmt.Errorf("configuring hub client: %w", err)
	}
	return c, nil
}
