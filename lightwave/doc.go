// Package lightwave is a client for the LightwaveRF LinkPlus public API.
//
// # Authentication
//
// LinkPlus issues a bearer ID (labelled "Basic" on the settings page) and a seed
// refresh token. Every refresh rotates the refresh token, so the latest pair is
// persisted in a Store and reused across restarts:
//
//	store := lightwave.NewFileStore(path)
//	client, err := lightwave.NewClient(
//	    lightwave.SeedCredential{BearerID: bearer, SeedRefreshToken: refresh},
//	    lightwave.WithStore(store),
//	)
//
// Access tokens are reused until the API rejects one. A rejected call is retried
// once with a refreshed token; if the rotated refresh token is rejected too, the
// seed is tried. When the seed is rejected, calls fail with ErrInvalidCredential
// and a new seed refresh token has to be supplied.
//
// # Basic Usage
//
//	devices, err := client.DevicesInFirstStructure(ctx)
//	for _, d := range devices {
//	    fmt.Println(d.Name)
//	}
//
//	id, err := device.FeatureID(lightwave.FeatureSwitch)
//	value, err := client.FeatureValue(ctx, id)
//	err = client.SetFeatureValue(ctx, id, 1-value)
//
// # Error Handling
//
//	if lightwave.IsInvalidCredential(err) {
//	    // ask the user for a new refresh token
//	}
//	if lightwave.IsNotFound(err) {
//	    // unknown structure or feature id
//	}
package lightwave
