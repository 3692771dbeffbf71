// Package license implements client-side license validation for the license core.
// It binds a license key to the device fingerprint, validates it against the
// license server and falls back to a cached validation while the server is
// unreachable.
//
// # Validation Flow
//
//	1. Normalize the key (trim, uppercase, strip spaces) and check its format
//	2. Obtain the device fingerprint from the collector
//	3. When online, call the server; a success refreshes the cached validation
//	4. A business rejection (expired, revoked, suspended, mismatch) is returned
//	   as is and clears the cache
//	5. Only a network-class failure falls back to the cached validation
//
// # Offline Fallback
//
// The cached validation is checked in this order:
//
//	- a cache exists for this key          else NO_LICENSE_CONFIGURED
//	- the fingerprint matches              else FINGERPRINT_MISMATCH
//	- the offline window has not elapsed   else CACHE_EXPIRED
//	- the license is not date-expired      else LICENSE_EXPIRED
//	- the license is not revoked/suspended else LICENSE_REVOKED/LICENSE_SUSPENDED
//
// The offline window is the tier grace period measured from the last online
// validation (trial 3, standard 7, professional 14, enterprise 30 days).
//
// # Server Client
//
// The server is reached through the ServerClient interface. Transport failures
// must be reported as NETWORK_ERROR or SERVER_ERROR license errors; business
// rejections are carried in the response errorCode field.
//
// # Usage
//
//	v := license.NewValidator(client, collector,
//		license.WithStore(store),
//		license.WithCodec(codec),
//	)
//	if err := v.Initialize(ctx); err != nil {
//		return err
//	}
//	result, err := v.Validate(ctx, "abcd-efgh-ijkl-mnop")
//	if errors.Is(err, apperrors.ErrLicenseExpired) {
//		// prompt for renewal
//	}
package license
