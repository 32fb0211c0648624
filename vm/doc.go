// Package vm implements the object model of the virtual machine.
//
// This package contains:
//   - Tagged value representation
//   - Object layout and slot access
//   - Classes with static fields and a class table
//   - Boot, platform and system class loaders and modules
//   - The class initialization protocol, with a hook for archived statics
package vm
