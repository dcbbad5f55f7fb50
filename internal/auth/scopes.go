package auth

// ScopeDeviceReset authorises erasing all local state on the device.
const ScopeDeviceReset = "device:reset"
